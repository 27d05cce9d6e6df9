//go:build js && wasm

package main

import (
	"bytes"
	"context"
	"syscall/js"

	"siftmatch/pkg/featurefile"
	"siftmatch/pkg/geometry"
	"siftmatch/pkg/imageio"
	"siftmatch/pkg/sift"
)

func main() {
	js.Global().Set("extractFeatures", js.FuncOf(extractFeatures))
	js.Global().Set("matchFeatures", js.FuncOf(matchFeatures))
	select {} // block forever
}

// extractFeatures(fileBytes, options) decodes a FITS or raster image and
// returns its keypoints plus the serialized feature file in "data".
func extractFeatures(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: extractFeatures(fileBytes, options)")
	}

	g, err := imageio.DecodeGrid(copyBytes(args[0]))
	if err != nil {
		return errorResult(err.Error())
	}
	defer g.Close()

	p := sift.NewParams()
	if len(args) >= 2 && args[1].Type() == js.TypeObject {
		opts := args[1]
		p.Steps = optInt(opts, "steps", p.Steps)
		p.InitialSigma = optFloat(opts, "sigma", p.InitialSigma)
		p.MinOctaveSize = optInt(opts, "minOctaveSize", p.MinOctaveSize)
		p.MaxOctaveSize = optInt(opts, "maxOctaveSize", p.MaxOctaveSize)
		p.MinContrast = optFloat(opts, "minContrast", p.MinContrast)
		p.EdgeRatio = optFloat(opts, "edgeRatio", p.EdgeRatio)
		p.Parallel = optBool(opts, "parallel", p.Parallel)
	}

	result, err := sift.Extract(context.Background(), g, p)
	if err != nil {
		return errorResult("Extraction error: " + err.Error())
	}

	var buf bytes.Buffer
	if err := featurefile.Write(&buf, result.Features, result.Width, result.Height); err != nil {
		return errorResult("Encoding error: " + err.Error())
	}
	data := js.Global().Get("Uint8Array").New(buf.Len())
	js.CopyBytesToJS(data, buf.Bytes())

	jsFeatures := make([]interface{}, len(result.Features))
	for i, f := range result.Features {
		jsFeatures[i] = map[string]interface{}{
			"x":           float64(f.X),
			"y":           float64(f.Y),
			"scale":       float64(f.Scale),
			"orientation": float64(f.Orientation),
		}
	}

	m := result.Metrics
	jsResult := map[string]interface{}{
		"width":    result.Width,
		"height":   result.Height,
		"features": jsFeatures,
		"data":     data,
		"metrics": map[string]interface{}{
			"octaves":        m.Octaves,
			"skippedOctaves": m.SkippedOctaves,
			"extrema":        m.Extrema,
			"lowContrast":    m.LowContrast,
			"edgeResponse":   m.EdgeResponse,
			"candidates":     m.Candidates,
			"featureCount":   m.Features,
		},
	}

	if c := sift.AnalyzeCoverage(result.Features, result.Width, result.Height); c != nil {
		jsZones := make([]interface{}, len(c.Zones))
		for i, z := range c.Zones {
			jsZones[i] = map[string]interface{}{
				"label":       z.Label,
				"count":       z.Count,
				"medianScale": z.MedianScale,
			}
		}
		jsResult["coverage"] = map[string]interface{}{
			"zones":    jsZones,
			"balance":  c.Balance,
			"reliable": c.Reliable,
		}
	}

	return js.ValueOf(jsResult)
}

// matchFeatures(a, b, options) matches two feature files as returned in the
// "data" field of extractFeatures.
func matchFeatures(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("usage: matchFeatures(a, b, options)")
	}

	_, as, err := featurefile.Read(bytes.NewReader(copyBytes(args[0])))
	if err != nil {
		return errorResult("feature file a: " + err.Error())
	}
	_, bs, err := featurefile.Read(bytes.NewReader(copyBytes(args[1])))
	if err != nil {
		return errorResult("feature file b: " + err.Error())
	}

	mp := sift.NewMatchParams()
	modelName := ""
	epsilon := 3.0
	if len(args) >= 3 && args[2].Type() == js.TypeObject {
		opts := args[2]
		mp.MaxDistanceRatio = optFloat(opts, "ratio", mp.MaxDistanceRatio)
		mp.MaxScaleRatio = optFloat(opts, "scaleRatio", mp.MaxScaleRatio)
		mp.Workers = optInt(opts, "workers", mp.Workers)
		if v := opts.Get("model"); v.Type() == js.TypeString {
			modelName = v.String()
		}
		epsilon = optFloat(opts, "epsilon", epsilon)
	}

	matches := sift.MatchFeatures(as, bs, mp)
	jsMatches := make([]interface{}, len(matches))
	for i, m := range matches {
		jsMatches[i] = map[string]interface{}{
			"ax":       float64(m.A.X),
			"ay":       float64(m.A.Y),
			"bx":       float64(m.B.X),
			"by":       float64(m.B.Y),
			"distance": float64(m.Distance),
			"weight":   float64(m.Weight),
		}
	}
	jsResult := map[string]interface{}{
		"count":   len(matches),
		"matches": jsMatches,
	}

	if modelName != "" && len(matches) > 0 {
		kind, err := geometry.ParseKind(modelName)
		if err != nil {
			return errorResult(err.Error())
		}
		model := geometry.NewModel(kind)
		pms := sift.MatchesToPointMatches(matches)
		if err := model.Fit(pms); err != nil {
			return errorResult("Model error: " + err.Error())
		}
		inliers, _ := model.Test(pms, epsilon, 0)
		jsResult["model"] = map[string]interface{}{
			"kind":     kind.String(),
			"affine":   []interface{}{model.A, model.B, model.TX, model.C, model.D, model.TY},
			"inliers":  len(inliers),
			"residual": model.Cost,
		}
	}

	return js.ValueOf(jsResult)
}

func copyBytes(v js.Value) []byte {
	out := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(out, v)
	return out
}

func optInt(opts js.Value, key string, def int) int {
	if v := opts.Get(key); v.Type() == js.TypeNumber {
		return v.Int()
	}
	return def
}

func optFloat(opts js.Value, key string, def float64) float64 {
	if v := opts.Get(key); v.Type() == js.TypeNumber {
		return v.Float()
	}
	return def
}

func optBool(opts js.Value, key string, def bool) bool {
	if v := opts.Get(key); v.Type() == js.TypeBoolean {
		return v.Bool()
	}
	return def
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
