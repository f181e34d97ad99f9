// Package optimizer turns a compression level into an ordered optimization
// profile and applies it through an external optimization engine.
package optimizer

import "svgass/models"

// NoRounding is the precision sentinel that disables numeric rounding.
const NoRounding = -1

// Step is one named optimization pass. Params is nil for passes that run
// with engine defaults.
type Step struct {
	Name   string         `json:"name"`
	Active bool           `json:"active"`
	Params map[string]any `json:"params,omitempty"`
}

// Profile is applied by the engine in slice order.
type Profile []Step

// Active returns the names of the active steps, in order.
func (p Profile) Active() []string {
	var names []string
	for _, s := range p {
		if s.Active {
			names = append(names, s.Name)
		}
	}
	return names
}

// Find returns the step with the given name.
func (p Profile) Find(name string) (Step, bool) {
	for _, s := range p {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

var precisions = map[models.CompressionLevel]int{
	models.CompressionCompatibilityOnly: NoRounding,
	models.CompressionSmall:             3,
	models.CompressionMedium:            1,
	models.CompressionStrong:            0,
}

// Precision returns the float precision for a level. ok is false for
// CompressionNone and undeclared levels.
func Precision(level models.CompressionLevel) (precision int, ok bool) {
	precision, ok = precisions[level]
	return precision, ok
}

// catalog lists every built-in engine step in the order the engine runs
// them, flagged with whether the engine enables it by default.
var catalog = []struct {
	name    string
	enabled bool
}{
	{"removeDoctype", true},
	{"removeXMLProcInst", true},
	{"removeComments", true},
	{"removeMetadata", true},
	{"removeXMLNS", false},
	{"removeEditorsNSData", true},
	{"cleanupAttrs", true},
	{"mergeStyles", true},
	{"inlineStyles", true},
	{"minifyStyles", true},
	{"convertStyleToAttrs", false},
	{"cleanupIDs", true},
	{"prefixIds", false},
	{"removeRasterImages", false},
	{"removeUselessDefs", true},
	{"cleanupNumericValues", true},
	{"cleanupListOfValues", false},
	{"convertColors", true},
	{"removeUnknownsAndDefaults", true},
	{"removeNonInheritableGroupAttrs", true},
	{"removeUselessStrokeAndFill", true},
	{"removeViewBox", true},
	{"cleanupEnableBackground", true},
	{"removeHiddenElems", true},
	{"removeEmptyText", true},
	{"convertShapeToPath", true},
	{"convertEllipseToCircle", true},
	{"moveElemsAttrsToGroup", true},
	{"moveGroupAttrsToElems", true},
	{"collapseGroups", true},
	{"convertPathData", true},
	{"convertTransform", true},
	{"removeEmptyAttrs", true},
	{"removeEmptyContainers", true},
	{"mergePaths", true},
	{"removeUnusedNS", true},
	{"sortAttrs", false},
	{"sortDefsChildren", true},
	{"removeTitle", true},
	{"removeDesc", true},
	{"removeDimensions", false},
	{"removeAttrs", false},
	{"removeAttributesBySelector", false},
	{"removeElementsByAttr", false},
	{"addClassesToSVGElement", false},
	{"removeStyleElement", false},
	{"removeScriptElement", false},
	{"addAttributesToSVGElement", false},
	{"removeOffCanvasPaths", false},
	{"reusePaths", false},
}

// DefaultProfile returns the engine's own step set.
func DefaultProfile() Profile {
	p := make(Profile, len(catalog))
	for i, c := range catalog {
		p[i] = Step{Name: c.name, Active: c.enabled}
	}
	return p
}

// BuildProfile maps a compression level to the profile handed to the engine.
// Levels without a precision are treated as CompatibilityOnly.
func BuildProfile(level models.CompressionLevel) Profile {
	precision, ok := Precision(level)
	if !ok {
		precision = NoRounding
	}

	base := DefaultProfile()
	if precision == NoRounding {
		for i := range base {
			base[i].Active = false
		}
	}
	return overlay(base, extraSteps(precision))
}

func extraSteps(precision int) []Step {
	rounding := precision != NoRounding
	return []Step{
		{
			// curveSmoothShorthands stays off: smooth curve shorthands break the converter.
			Name:   "convertPathData",
			Active: rounding,
			Params: map[string]any{
				"applyTransforms":        true,
				"applyTransformsStroked": true,
				"makeArcs": map[string]any{
					"threshold": 2.5,
					"tolerance": 0.5,
				},
				"straightCurves":        true,
				"lineShorthands":        true,
				"curveSmoothShorthands": false,
				"floatPrecision":        precision,
				"transformPrecision":    5,
				"removeUseless":         true,
				"collapseRepeated":      true,
				"utilizeAbsolute":       true,
				"leadingZero":           true,
				"negativeExtraSpace":    true,
				"noSpaceAfterFlags":     false,
				"forceAbsolutePath":     false,
			},
		},
		{
			Name:   "cleanupNumericValues",
			Active: rounding,
			Params: map[string]any{"floatPrecision": precision},
		},
		{
			Name:   "cleanupListOfValues",
			Active: rounding,
			Params: map[string]any{"floatPrecision": precision},
		},
		// Required by the converter regardless of level.
		{Name: "convertStyleToAttrs", Active: true},
		{Name: "inlineStyles", Active: true, Params: map[string]any{"onlyMatchedOnce": false}},
		{Name: "convertColors", Active: false},
		{Name: "minifyStyles", Active: false},
	}
}

// overlay replaces base entries by name and appends unknown steps.
func overlay(base Profile, steps []Step) Profile {
	index := make(map[string]int, len(base))
	for i, s := range base {
		index[s.Name] = i
	}
	for _, s := range steps {
		if i, ok := index[s.Name]; ok {
			base[i] = s
			continue
		}
		index[s.Name] = len(base)
		base = append(base, s)
	}
	return base
}
