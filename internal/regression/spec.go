package regression

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Variable names shared by the default model specification and the frame
// builder.
const (
	VarLogPricePerArea = "log_prix_m2"
	VarFloodZone       = "zone_inondable"
	VarFloodOverflow   = "zone_inondable x debordement"
	VarLogBuiltArea    = "log_surface_reelle_bati"
	VarRooms           = "nombre_pieces_principales"
	VarLand            = "terrain"
	VarDependency      = "dependance"
	VarLogDistCenter   = "log_distance_centre_ville"
	VarLogDistBeach    = "log_distance_min_beach"
	VarLogDistStation  = "log_distance_min_station"
)

// Variant is one named model: an ordered list of explanatory variables.
// Entries may be glob patterns such as "commune_*".
type Variant struct {
	Name      string   `yaml:"name"`
	Variables []string `yaml:"variables"`
}

// Spec is a set of nested model variants and how to display them.
type Spec struct {
	Dependent string    `yaml:"dependent"`
	Variants  []Variant `yaml:"variants"`
	// Order is the display order of table rows.
	Order []string `yaml:"order"`
	// HidePrefixes removes fixed-effect rows from the display.
	HidePrefixes []string `yaml:"hide_prefixes"`
	// Labels maps a property type to its column prefix ("Appart", "Maison").
	Labels map[string]string `yaml:"labels"`
}

var baseVariables = []string{
	VarFloodZone,
	VarLogBuiltArea,
	VarRooms,
	VarLand,
	VarDependency,
	"periode_construction_dpe_*",
	"dpe_*",
	"population_*",
}

// DefaultSpec returns the four nested hedonic models: base covariates, then
// commune fixed effects, then geography, then the flood-type and scenario
// interaction terms.
func DefaultSpec() Spec {
	m1 := append([]string(nil), baseVariables...)
	m2 := append(append([]string(nil), m1...), "commune_*")
	m3 := append(append([]string(nil), m2...), VarLogDistCenter, VarLogDistBeach, VarLogDistStation)
	m4 := append(append([]string(nil), m3...), VarFloodOverflow, "scenario_*")

	return Spec{
		Dependent: VarLogPricePerArea,
		Variants: []Variant{
			{Name: "M1", Variables: m1},
			{Name: "M2", Variables: m2},
			{Name: "M3", Variables: m3},
			{Name: "M4", Variables: m4},
		},
		Order: []string{
			RowObservations,
			RowAdjR2,
			ConstName,
			VarFloodZone,
			VarFloodOverflow,
			"scenario_04Fai",
			"scenario_02Moy_03Mcc",
			"scenario_01For",
			VarLogDistCenter,
			VarLogDistBeach,
			VarLogDistStation,
			VarLogBuiltArea,
			VarRooms,
			VarLand,
			VarDependency,
			"periode_construction_dpe_1948-1974",
			"periode_construction_dpe_1975-1988",
			"periode_construction_dpe_1989-2000",
			"periode_construction_dpe_2001-2012",
			"periode_construction_dpe_après 2013",
			"dpe_D",
			"dpe_C",
			"dpe_B",
			"dpe_A",
			"population_10000-20000",
			"population_plus_20000",
		},
		HidePrefixes: []string{"commune"},
		Labels: map[string]string{
			"Appartement": "Appart",
			"Maison":      "Maison",
		},
	}
}

// LoadSpec reads a YAML model specification. Fields left out of the file
// keep their DefaultSpec values.
func LoadSpec(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, eris.Wrapf(err, "regression: read spec %s", path)
	}
	spec := DefaultSpec()
	var file Spec
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Spec{}, eris.Wrapf(err, "regression: parse spec %s", path)
	}
	if file.Dependent != "" {
		spec.Dependent = file.Dependent
	}
	if len(file.Variants) > 0 {
		spec.Variants = file.Variants
	}
	if file.Order != nil {
		spec.Order = file.Order
	}
	if file.HidePrefixes != nil {
		spec.HidePrefixes = file.HidePrefixes
	}
	if file.Labels != nil {
		spec.Labels = file.Labels
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Validate checks that every variant is named uniquely and lists variables.
func (s Spec) Validate() error {
	if s.Dependent == "" {
		return eris.New("regression: spec has no dependent variable")
	}
	seen := make(map[string]bool, len(s.Variants))
	for i, v := range s.Variants {
		if v.Name == "" {
			return eris.Errorf("regression: variant %d has no name", i)
		}
		if seen[v.Name] {
			return eris.Errorf("regression: duplicate variant %q", v.Name)
		}
		seen[v.Name] = true
		if len(v.Variables) == 0 {
			return eris.Errorf("regression: variant %q has no variables", v.Name)
		}
	}
	return nil
}

// Fitted pairs a variant with its model.
type Fitted struct {
	Variant Variant
	Model   *Model
}

// FitObserver is told the outcome of each variant fit.
type FitObserver func(variant string, err error)

// FitAll fits every variant of spec on frame. A variant that cannot be fit
// is logged and left out; the rest still run.
func FitAll(f *Frame, spec Spec, label string) []Fitted {
	return FitAllObserved(f, spec, label, nil)
}

// FitAllObserved is FitAll reporting each outcome to obs, which may be nil.
func FitAllObserved(f *Frame, spec Spec, label string, obs FitObserver) []Fitted {
	log := zap.L().With(zap.String("component", "regression"), zap.String("subset", label))
	if obs == nil {
		obs = func(string, error) {}
	}

	var out []Fitted
	for _, v := range spec.Variants {
		vars, err := f.Expand(v.Variables)
		if err != nil {
			log.Warn("regression: variant skipped", zap.String("variant", v.Name), zap.Error(err))
			obs(v.Name, err)
			continue
		}
		m, err := Fit(f, spec.Dependent, vars)
		obs(v.Name, err)
		if err != nil {
			log.Warn("regression: variant skipped", zap.String("variant", v.Name), zap.Error(err))
			continue
		}
		log.Info("regression: variant fitted",
			zap.String("variant", v.Name),
			zap.Int("n", m.N),
			zap.Int("params", len(m.Params)),
			zap.Float64("adj_r2", m.AdjR2),
		)
		out = append(out, Fitted{Variant: v, Model: m})
	}
	return out
}

// Report turns fitted variants into the display table: extracted, joined,
// fixed effects hidden, ordered, and relabeled with prefix.
func Report(fitted []Fitted, spec Spec, prefix string) *ResultTable {
	tables := make([]*ResultTable, 0, len(fitted))
	for _, f := range fitted {
		tables = append(tables, Extract(f.Model, f.Variant.Name))
	}
	t := Join(tables...)
	for _, p := range spec.HidePrefixes {
		t = FilterPrefix(t, p)
	}
	if len(spec.Order) > 0 {
		t = Order(t, spec.Order)
	}
	return Relabel(t, prefix)
}
