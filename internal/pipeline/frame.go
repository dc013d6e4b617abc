package pipeline

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dvf-flood/internal/dvf"
	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/internal/regression"
)

// Dummy prefixes and their reference levels.
const (
	prefixScenario    = "scenario"
	prefixDPE         = "dpe"
	prefixBuildPeriod = "periode_construction_dpe"
	prefixPopulation  = "population"
	prefixCommune     = "commune"

	// ScenarioMediumClimate merges the medium and climate-change scenarios,
	// which share one dummy.
	ScenarioMediumClimate = model.ScenarioMedium + "_" + model.ScenarioClimate
	periodReference       = "avant 1948"
)

var dpeReference = []string{"E", "F", "G"}

// BuildFrame turns sales into the regression frame: log price per m², the
// flood indicator and its interactions, log distances, structural
// covariates and the categorical dummies. Ambiguous and failed flood
// lookups leave zone_inondable null, so those sales drop out of every fit.
func BuildFrame(txs []model.Transaction) (*regression.Frame, error) {
	n := len(txs)
	f := regression.NewFrame(n)

	price := make([]float64, n)
	zone := make([]float64, n)
	overflow := make([]float64, n)
	builtLog := make([]float64, n)
	rooms := make([]float64, n)
	land := make([]float64, n)
	dep := make([]float64, n)
	scenario := make([]string, n)
	dpe := make([]string, n)
	period := make([]string, n)
	band := make([]string, n)
	commune := make([]string, n)

	dist := map[string][]float64{
		regression.VarLogDistCenter:  make([]float64, n),
		regression.VarLogDistBeach:   make([]float64, n),
		regression.VarLogDistStation: make([]float64, n),
	}
	distFeature := map[string]string{
		regression.VarLogDistCenter:  model.FeatureDistanceCenter,
		regression.VarLogDistBeach:   model.FeatureDistanceBeach,
		regression.VarLogDistStation: model.FeatureDistanceStation,
	}

	for i := range txs {
		tx := &txs[i]

		price[i] = math.NaN()
		if v, ok := tx.PricePerArea(); ok {
			price[i] = v
		}

		switch {
		case tx.Flood.InZone():
			zone[i] = 1
		case tx.Flood != nil && tx.Flood.Status == model.FloodNoZone:
			zone[i] = 0
		default:
			zone[i] = math.NaN()
		}
		if tx.Flood.Overflow() {
			overflow[i] = 1
		}
		scenario[i] = scenarioLevel(tx.Flood.ScenarioCode())

		builtLog[i] = dvf.LogOrNaN(tx.BuiltArea)
		rooms[i] = math.NaN()
		if tx.RoomCount != nil {
			rooms[i] = float64(*tx.RoomCount)
		}
		if tx.LandArea > 0 {
			land[i] = 1
		}
		if tx.HasDependency {
			dep[i] = 1
		}

		for col, feature := range distFeature {
			dist[col][i] = math.NaN()
			if km, ok := tx.Distance(feature); ok {
				dist[col][i] = dvf.LogOrNaN(km)
			}
		}

		dpe[i] = tx.Extra[ExtraDPE]
		period[i] = tx.Extra[ExtraBuildPeriod]
		if tx.Population != nil {
			band[i] = dvf.PopulationBand(*tx.Population)
		}
		commune[i] = tx.CommuneCode
	}

	cols := []struct {
		name   string
		values []float64
	}{
		{dvf.ColPricePerArea, price},
		{regression.VarFloodZone, zone},
		{"debordement", overflow},
		{regression.VarLogBuiltArea, builtLog},
		{regression.VarRooms, rooms},
		{regression.VarLand, land},
		{regression.VarDependency, dep},
		{regression.VarLogDistCenter, dist[regression.VarLogDistCenter]},
		{regression.VarLogDistBeach, dist[regression.VarLogDistBeach]},
		{regression.VarLogDistStation, dist[regression.VarLogDistStation]},
	}
	for _, c := range cols {
		if err := f.AddColumn(c.name, c.values); err != nil {
			return nil, eris.Wrap(err, "pipeline: build frame")
		}
	}
	if err := f.Log(regression.VarLogPricePerArea, dvf.ColPricePerArea); err != nil {
		return nil, eris.Wrap(err, "pipeline: build frame")
	}
	if err := f.Interaction(regression.VarFloodOverflow, regression.VarFloodZone, "debordement"); err != nil {
		return nil, eris.Wrap(err, "pipeline: build frame")
	}

	dummies := []struct {
		prefix    string
		values    []string
		dropFirst bool
		omit      []string
	}{
		{prefixScenario, scenario, false, []string{model.ScenarioStrong}},
		{prefixDPE, dpe, false, dpeReference},
		{prefixBuildPeriod, period, false, []string{periodReference}},
		{prefixPopulation, band, false, []string{dvf.BandSmall}},
		{prefixCommune, commune, true, nil},
	}
	for _, d := range dummies {
		if _, err := f.Dummies(d.prefix, d.values, d.dropFirst, d.omit...); err != nil {
			return nil, eris.Wrapf(err, "pipeline: %s dummies", d.prefix)
		}
	}
	return f, nil
}

// scenarioLevel maps a scenario code to its dummy level. Strong is the
// reference level and shares no column with the others.
func scenarioLevel(code string) string {
	switch code {
	case model.ScenarioMedium, model.ScenarioClimate:
		return ScenarioMediumClimate
	default:
		return code
	}
}

// ByPropertyType splits sales into the House and Apartment subsets.
func ByPropertyType(txs []model.Transaction) map[model.PropertyType][]model.Transaction {
	out := make(map[model.PropertyType][]model.Transaction, 2)
	for _, tx := range txs {
		if tx.PropertyType.Residential() {
			out[tx.PropertyType] = append(out[tx.PropertyType], tx)
		}
	}
	return out
}
