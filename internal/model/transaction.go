package model

// PropertyType is the DVF type_local label of a lot.
type PropertyType string

const (
	PropertyHouse      PropertyType = "Maison"
	PropertyApartment  PropertyType = "Appartement"
	PropertyDependency PropertyType = "Dépendance"
	PropertyCommercial PropertyType = "Local industriel. commercial ou assimilé"
)

// Residential reports whether the type counts toward built area.
func (p PropertyType) Residential() bool {
	return p == PropertyHouse || p == PropertyApartment
}

// CoordSource records where a transaction's coordinate came from.
type CoordSource string

const (
	CoordSourceDVF      CoordSource = "dvf"
	CoordSourceAddress  CoordSource = "ban"
	CoordSourceFallback CoordSource = "fallback"
)

// Distance feature names, in kilometers.
const (
	FeatureDistanceCenter  = "distance_centre_ville"
	FeatureDistanceBeach   = "distance_min_beach"
	FeatureDistanceStation = "distance_min_station"
	FeatureDistanceHarbor  = "distance_min_harbor"
)

// Transaction is one sale, after per-disposition aggregation of DVF rows.
type Transaction struct {
	MutationID    string       `json:"id_mutation"`
	Disposition   string       `json:"numero_disposition"`
	MutationDate  string       `json:"date_mutation"`
	Nature        string       `json:"nature_mutation"`
	DeclaredValue *float64     `json:"valeur_fonciere,omitempty"`
	PropertyType  PropertyType `json:"type_local"`
	BuiltArea     float64      `json:"surface_reelle_bati"`
	LandArea      float64      `json:"surface_terrain"`
	RoomCount     *int         `json:"nombre_pieces_principales,omitempty"`
	LotCount      int          `json:"nombre_locaux"`
	HasHouse      bool         `json:"maison_present"`
	HasApartment  bool         `json:"appart_present"`
	HasDependency bool         `json:"dependance"`

	AddressNumber  string `json:"adresse_numero"`
	AddressSuffix  string `json:"adresse_suffixe,omitempty"`
	StreetName     string `json:"adresse_nom_voie"`
	PostalCode     string `json:"code_postal"`
	CommuneCode    string `json:"code_commune"`
	CommuneName    string `json:"nom_commune"`
	DepartmentCode string `json:"code_departement"`
	NatureCulture  string `json:"nature_culture,omitempty"`
	Address        string `json:"adresse,omitempty"`

	Coord       *Coordinate        `json:"coord,omitempty"`
	CoordSource CoordSource        `json:"coord_source,omitempty"`
	Distances   map[string]float64 `json:"distances,omitempty"`
	Flood       *FloodTag          `json:"flood,omitempty"`
	Population  *int               `json:"population,omitempty"`

	// Extra carries pass-through columns (for example DPE labels) used as
	// categorical covariates.
	Extra map[string]string `json:"extra,omitempty"`
}

// Key identifies the sale: one per (mutation, disposition).
func (t *Transaction) Key() string {
	return t.MutationID + "/" + t.Disposition
}

// PricePerArea returns declared value per built m². It is undefined when
// the value is missing or the built area is zero.
func (t *Transaction) PricePerArea() (float64, bool) {
	if t.DeclaredValue == nil || t.BuiltArea <= 0 {
		return 0, false
	}
	return *t.DeclaredValue / t.BuiltArea, true
}

// Distance returns the named distance feature in km, if defined.
func (t *Transaction) Distance(name string) (float64, bool) {
	d, ok := t.Distances[name]
	return d, ok
}

// SetDistance records a distance feature.
func (t *Transaction) SetDistance(name string, km float64) {
	if t.Distances == nil {
		t.Distances = make(map[string]float64)
	}
	t.Distances[name] = km
}
