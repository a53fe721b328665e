package bnmr

import (
	"fmt"
	"math"
	"strconv"

	"fitsync/pkg/domain"
)

// Fit function titles.
const (
	FuncExp        = "Exp"
	FuncStrExp     = "Str Exp"
	FuncLorentzian = "Lorentzian"
	FuncGaussian   = "Gaussian"
)

// GammaLi8 is the gyromagnetic ratio of 8Li in MHz/T.
const GammaLi8 = 6.3015

var functionsByMode = map[string][]string{
	"20": {FuncExp, FuncStrExp},
	"2h": {FuncExp, FuncStrExp},
	"1f": {FuncLorentzian, FuncGaussian},
	"1w": {FuncLorentzian, FuncGaussian},
	"1n": {FuncLorentzian, FuncGaussian},
}

// component parameters per function, before suffixing. Resonance models add
// one shared baseline after the components.
var componentParams = map[string][]string{
	FuncExp:        {"1_T1", "amp"},
	FuncStrExp:     {"1_T1", "beta", "amp"},
	FuncLorentzian: {"peak", "width", "height"},
	FuncGaussian:   {"peak", "width", "height"},
}

func isResonance(fn string) bool {
	return fn == FuncLorentzian || fn == FuncGaussian
}

func checkModel(fn string, ncomp int) error {
	if _, ok := componentParams[fn]; !ok {
		return fmt.Errorf("%q: %w", fn, domain.ErrUnknownFunction)
	}
	if ncomp < 1 {
		return fmt.Errorf("%q with %d components: %w", fn, ncomp, domain.ErrUnknownFunction)
	}
	return nil
}

// paramNames lists parameters in evaluation order. With more than one
// component every per-component name gets a _i suffix.
func paramNames(fn string, ncomp int) ([]string, error) {
	if err := checkModel(fn, ncomp); err != nil {
		return nil, err
	}
	base := componentParams[fn]
	names := make([]string, 0, len(base)*ncomp+1)
	for i := 1; i <= ncomp; i++ {
		for _, b := range base {
			if ncomp > 1 {
				b += "_" + strconv.Itoa(i)
			}
			names = append(names, b)
		}
	}
	if isResonance(fn) {
		names = append(names, "baseline")
	}
	return names, nil
}

// model returns the fit function evaluated with parameters in paramNames
// order.
func model(fn string, ncomp int) (domain.FittedFunc, error) {
	if err := checkModel(fn, ncomp); err != nil {
		return nil, err
	}
	width := len(componentParams[fn])
	var term func(x float64, p []float64) float64
	switch fn {
	case FuncExp:
		term = func(x float64, p []float64) float64 { return p[1] * math.Exp(-p[0]*x) }
	case FuncStrExp:
		term = func(x float64, p []float64) float64 { return p[2] * math.Exp(-math.Pow(p[0]*x, p[1])) }
	case FuncLorentzian:
		term = func(x float64, p []float64) float64 {
			d := (x - p[0]) / p[1]
			return -p[2] / (1 + d*d)
		}
	case FuncGaussian:
		term = func(x float64, p []float64) float64 {
			d := (x - p[0]) / p[1]
			return -p[2] * math.Exp(-d*d/2)
		}
	}
	want := width * ncomp
	if isResonance(fn) {
		want++
	}
	return func(x float64, params ...float64) float64 {
		if len(params) != want {
			return math.NaN()
		}
		var sum float64
		for i := 0; i < ncomp; i++ {
			sum += term(x, params[i*width:(i+1)*width])
		}
		if isResonance(fn) {
			sum += params[want-1]
		}
		return sum
	}, nil
}
