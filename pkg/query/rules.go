package query

import "regexp"

// Rules is the immutable catalog the simplifier works from
type Rules struct {
	// DropWords are lowercase tokens that never carry search intent
	DropWords map[string]struct{}
	// DropPatterns match tokens such as numbers, sizes and measurements
	DropPatterns []*regexp.Regexp
	MaxTokens    int
	MaxLength    int
	CapitalBonus int
}

// DefaultRules returns the built-in en/de/fr/es/nl catalog
func DefaultRules() Rules {
	return Rules{
		DropWords:    wordSet(connectors, genders, colors, stockWords, priceWords, sizeWords),
		DropPatterns: dropPatterns,
		MaxTokens:    3,
		MaxLength:    50,
		CapitalBonus: 2,
	}
}

var dropPatterns = []*regexp.Regexp{
	// numbers and prices
	regexp.MustCompile(`^[€$£]?\d+([.,]\d+)?[€$£]?$`),
	// size ranges and dimensions: 40-42, 10x20, 42/43
	regexp.MustCompile(`^\d+([.,]\d+)?(\s*[-–/x×]\s*\d+([.,]\d+)?)+[a-z]*$`),
	// measurements with a unit suffix
	regexp.MustCompile(`(?i)^\d+([.,]\d+)?(mm|cm|m|km|g|kg|mg|l|ml|cl|in|inch|inches|ft|"|w|kw|v|mah|gb|tb|mb|eu|us|uk|fr|hz|ghz)$`),
	// clothing sizes
	regexp.MustCompile(`(?i)^(xxs|xs|s|m|l|xl|xxl|xxxl|\dxl)$`),
}

var connectors = []string{
	"a", "an", "the", "and", "or", "of", "for", "with", "without", "in", "on", "to", "from", "by", "at", "that", "is", "are",
	"some", "any", "i", "me", "my", "want", "need", "looking", "find", "show", "search", "please",
	"ein", "eine", "einen", "der", "die", "das", "den", "und", "oder", "für", "mit", "ohne", "im", "von", "ich", "suche", "bitte",
	"un", "une", "le", "la", "les", "des", "du", "de", "et", "ou", "pour", "avec", "sans", "je", "cherche",
	"el", "los", "las", "unos", "unas", "y", "o", "para", "con", "sin", "en", "busco",
	"het", "een", "en", "of", "voor", "met", "zonder", "ik", "zoek",
}

var genders = []string{
	"men", "mens", "men's", "man", "male", "women", "womens", "women's", "woman", "female", "ladies", "kids", "kid's",
	"boys", "girls", "unisex", "children",
	"herren", "damen", "kinder", "jungen", "mädchen",
	"homme", "hommes", "femme", "femmes", "enfant", "enfants",
	"hombre", "hombres", "mujer", "mujeres", "niños", "niñas",
	"heren", "dames", "kinderen", "jongens", "meisjes",
}

var colors = []string{
	"black", "white", "red", "blue", "green", "brown", "grey", "gray", "yellow", "pink", "purple", "orange", "beige", "navy", "silver", "gold",
	"schwarz", "weiss", "weiß", "rot", "blau", "grün", "braun", "grau", "gelb", "rosa", "lila",
	"noir", "noire", "blanc", "blanche", "rouge", "bleu", "bleue", "vert", "verte", "marron", "gris", "jaune",
	"negro", "negra", "blanco", "blanca", "rojo", "roja", "azul", "verde", "marrón", "amarillo",
	"zwart", "wit", "witte", "rood", "rode", "blauw", "blauwe", "groen", "bruin", "bruine", "grijs", "geel",
}

var stockWords = []string{
	"available", "availability", "instock", "in-stock", "stock", "deliverable",
	"lieferbar", "verfügbar", "vorrätig", "lager",
	"disponible", "disponibles", "stock",
	"existencias",
	"beschikbaar", "voorradig", "leverbaar",
}

var priceWords = []string{
	"cheap", "cheaper", "cheapest", "price", "prices", "under", "below", "above", "over", "budget", "affordable", "expensive", "euro", "euros", "eur", "usd", "dollar", "dollars",
	"günstig", "günstige", "billig", "preis", "unter",
	"pas", "cher", "prix", "moins",
	"barato", "barata", "precio", "menos",
	"goedkoop", "goedkope", "prijs", "onder",
}

var sizeWords = []string{
	"size", "sizes", "sized", "größe", "grösse", "gr", "taille", "pointure", "talla", "maat",
}

func wordSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, w := range list {
			set[w] = struct{}{}
		}
	}
	return set
}
