package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/titanous/json5"
)

// Tables holds the keyword and gazetteer data the extractors match against.
// Matching is case-insensitive substring search; entries are lowercased when
// the tables are loaded or installed.
type Tables struct {
	// Product interest: any product token or buying phrase qualifies.
	Products      []string `json:"products"`
	BuyingPhrases []string `json:"buying_phrases"`

	// Gazetteers, checked in priority order: local areas, region cities, other cities.
	LocalRegion  string   `json:"local_region"` // e.g. "Bangalore"
	LocalAreas   []string `json:"local_areas"`
	Region       string   `json:"region"` // e.g. "Karnataka"
	RegionCities []string `json:"region_cities"`
	OtherCities  []string `json:"other_cities"`

	// MaxRequirementLen truncates captured product interest (default 200).
	MaxRequirementLen int `json:"max_requirement_len,omitempty"`
}

// LoadTables reads a JSON5 tables file. Sections left empty in the file
// fall back to DefaultTables.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Tables
	if err := json5.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tables %s: %w", path, err)
	}
	t.fillDefaults()
	return t.normalized(), nil
}

// normalized returns a copy with every entry trimmed and lowercased.
// Empty entries are dropped.
func (t *Tables) normalized() *Tables {
	n := *t
	n.Products = lowerAll(t.Products)
	n.BuyingPhrases = lowerAll(t.BuyingPhrases)
	n.LocalAreas = lowerAll(t.LocalAreas)
	n.RegionCities = lowerAll(t.RegionCities)
	n.OtherCities = lowerAll(t.OtherCities)
	return &n
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (t *Tables) fillDefaults() {
	def := DefaultTables()
	if len(t.Products) == 0 {
		t.Products = def.Products
	}
	if len(t.BuyingPhrases) == 0 {
		t.BuyingPhrases = def.BuyingPhrases
	}
	if t.LocalRegion == "" {
		t.LocalRegion = def.LocalRegion
	}
	if len(t.LocalAreas) == 0 {
		t.LocalAreas = def.LocalAreas
	}
	if t.Region == "" {
		t.Region = def.Region
	}
	if len(t.RegionCities) == 0 {
		t.RegionCities = def.RegionCities
	}
	if len(t.OtherCities) == 0 {
		t.OtherCities = def.OtherCities
	}
	if t.MaxRequirementLen <= 0 {
		t.MaxRequirementLen = def.MaxRequirementLen
	}
}

// DefaultTables returns the built-in showroom tables (Bangalore, Karnataka).
func DefaultTables() *Tables {
	return &Tables{
		Products: []string{
			"bmw", "mercedes", "benz", "audi", "toyota", "honda", "hyundai", "kia",
			"ford", "tata", "mahindra", "maruti", "suzuki", "volkswagen", "vw", "volvo",
			"jeep", "range rover", "land rover", "porsche", "lexus", "jaguar", "skoda",
			"evoque", "defender", "discovery", "freelander", "cayenne", "macan",
			"gle", "glc", "gla", "glb", "e class", "c class", "s class", "a class",
			"e200", "e220", "c200", "c220", "c300",
			"3 series", "5 series", "7 series", "x1", "x3", "x5", "x7",
			"320d", "520d", "530d", "730d", "118i", "120i",
			"a4", "a6", "a8", "q3", "q5", "q7", "q8",
			"xc60", "xc90", "xc40",
			"fortuner", "innova", "crysta", "legender",
			"creta", "nexon", "harrier", "safari", "thar",
			"city", "civic", "accord", "cr-v",
			"celerio", "baleno", "brezza", "ertiga", "swift",
			"tucson", "santa fe", "veloster", "elantra",
			"octavia", "superb", "kodiaq",
			"endeavour", "mustang", "ecosport",
			"bolero", "xuv", "xuv500", "xuv700", "scorpio",
		},
		BuyingPhrases: []string{
			"looking for", "i want", "i need", "want to buy", "planning to buy",
			"interested in", "searching for", "i am looking", "im looking",
			"budget is", "my budget", "can i get",
		},
		LocalRegion: "Bangalore",
		LocalAreas: []string{
			"jp nagar", "hsr layout", "hsr", "koramangala", "indiranagar", "whitefield",
			"electronic city", "marathahalli", "bellandur", "sarjapur", "bannerghatta",
			"jayanagar", "btm layout", "btm", "wilson garden", "shivajinagar", "mg road",
			"brigade road", "lavelle road", "ub city", "sadashivanagar", "malleshwaram",
			"yeshwanthpur", "rajajinagar", "vijayanagar", "hebbal", "yelahanka",
			"devanahalli", "kengeri", "mysore road", "tumkur road", "cunningham road",
			"richmond town", "langford town", "cox town", "frazer town", "banaswadi",
			"hbr layout", "kalyan nagar", "rt nagar", "ramamurthy nagar", "mahadevapura",
			"kr puram", "tin factory", "old airport road", "hal", "domlur", "ejipura",
			"jakkur", "thanisandra", "hennur", "nagawara", "sahakara nagar", "sanjaynagar",
			"mathikere", "peenya", "dasarahalli", "chikkabanavara", "bangalore", "bengaluru", "blr",
		},
		Region: "Karnataka",
		RegionCities: []string{
			"mysore", "mysuru", "mangalore", "mangaluru", "hubli", "dharwad",
			"belgaum", "bellary", "tumkur", "hassan", "mandya", "shimoga", "davangere",
		},
		OtherCities: []string{
			"mumbai", "delhi", "chennai", "hyderabad", "pune", "kolkata", "ahmedabad",
			"surat", "jaipur", "lucknow", "noida", "gurgaon",
		},
		MaxRequirementLen: 200,
	}
}
