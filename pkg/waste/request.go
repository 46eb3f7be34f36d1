package waste

import (
	"fmt"
	"slices"

	"github.com/m-mizutani/goerr/v2"
)

type CropType string

const (
	CropRice      CropType = "rice"
	CropWheat     CropType = "wheat"
	CropSugarcane CropType = "sugercane"
	CropCorn      CropType = "corn"
)

type HarvestSeason string

const (
	SeasonSummer  HarvestSeason = "summer"
	SeasonWinter  HarvestSeason = "winter"
	SeasonMonsoon HarvestSeason = "monsoon"
)

type SoilType string

const (
	SoilClay  SoilType = "clay"
	SoilSandy SoilType = "sandy"
	SoilLoamy SoilType = "loamy"
)

type FarmingTechnique string

const (
	TechniqueTraditional FarmingTechnique = "traditional"
	TechniqueOrganic     FarmingTechnique = "organic"
	TechniqueModern      FarmingTechnique = "modern"
)

var (
	cropTypes      = []CropType{CropRice, CropWheat, CropSugarcane, CropCorn}
	harvestSeasons = []HarvestSeason{SeasonSummer, SeasonWinter, SeasonMonsoon}
	soilTypes      = []SoilType{SoilClay, SoilSandy, SoilLoamy}
	techniques     = []FarmingTechnique{TechniqueTraditional, TechniqueOrganic, TechniqueModern}
)

// ErrUnknownCategory is returned for a categorical value outside the known set.
var ErrUnknownCategory = goerr.New("unknown categorical value")

// Request is one farm's attributes. Categorical values are matched exactly,
// case-sensitive. An empty categorical field sets no indicator.
type Request struct {
	CropArea         float64          `json:"crop_area"`
	CropType         CropType         `json:"crop_type"`
	HarvestSeason    HarvestSeason    `json:"harvest_season"`
	SoilType         SoilType         `json:"soil_type"`
	FarmingTechnique FarmingTechnique `json:"farming_technique"`
	Temperature      float64          `json:"temperature"`
	Rainfall         float64          `json:"rainfall"`
	Humidity         float64          `json:"humidity"`
}

// Validate rejects unknown categorical values unless lenient is set, in
// which case they encode as all-zero indicators. Numeric ranges are not
// checked.
func (r Request) Validate(lenient bool) error {
	if lenient {
		return nil
	}
	if err := checkEnum("crop_type", r.CropType, cropTypes); err != nil {
		return err
	}
	if err := checkEnum("harvest_season", r.HarvestSeason, harvestSeasons); err != nil {
		return err
	}
	if err := checkEnum("soil_type", r.SoilType, soilTypes); err != nil {
		return err
	}
	return checkEnum("farming_technique", r.FarmingTechnique, techniques)
}

func checkEnum[T ~string](field string, v T, allowed []T) error {
	if v == "" || slices.Contains(allowed, v) {
		return nil
	}
	return goerr.Wrap(ErrUnknownCategory, fmt.Sprintf("%s %q", field, string(v)),
		goerr.V("field", field), goerr.V("allowed", allowed))
}

// Features maps the request onto encoded column names.
func (r Request) Features() map[string]float64 {
	f := map[string]float64{
		"crop_area":   r.CropArea,
		"temperature": r.Temperature,
		"rainfall":    r.Rainfall,
		"humidity":    r.Humidity,
	}
	set := func(column, value string) {
		if value != "" {
			f[indicator(column, value)] = 1
		}
	}
	set("crop_type", string(r.CropType))
	set("harvest_season", string(r.HarvestSeason))
	set("soil_type", string(r.SoilType))
	set("farming_technique", string(r.FarmingTechnique))
	return f
}
