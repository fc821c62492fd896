// Package triage provides intent classification and routing for chat
// queries against portfolio holdings.
package triage

import "regexp"

// pattern is one entry in the ordered classification table. Capture groups
// are named qty, symbol, price and portfolio; absent groups simply leave
// the intent field empty.
type pattern struct {
	re *regexp.Regexp
	// vagueQuantity marks phrasings like "add some AAPL" where the user
	// gave no usable number.
	vagueQuantity bool
}

const (
	qtyGroup       = `(?P<qty>\d+(?:\.\d+)?)`
	priceGroup     = `\$?\s?(?P<price>\d+(?:\.\d+)?)`
	symbolGroup    = `(?P<symbol>[A-Za-z]+)`
	sharesOf       = `(?:shares?\s+(?:of\s+)?|stocks?\s+(?:of\s+)?)?`
	portfolioTail  = `(?:\s+(?:to|in|into|from)\s+(?:my\s+)?(?P<portfolio>[A-Za-z][A-Za-z ]*?)\s+portfolio)?`
	vagueWordGroup = `(?:some|a\s+few|few|a\s+couple\s+of|several|more)`
)

// addPatterns match buy-side mutations. Order matters: the fully specified
// phrasing is tried before the price-less one so "at $150" is never left
// on the floor.
var addPatterns = []pattern{
	{re: regexp.MustCompile(`(?i)\b(?:add|buy|purchase)\s+` + qtyGroup + `\s+` + sharesOf + symbolGroup + `\s+(?:at|@|for)\s+` + priceGroup + `(?:\s+(?:each|per\s+share))?` + portfolioTail)},
	{re: regexp.MustCompile(`(?i)\b(?:add|buy|purchase)\s+` + qtyGroup + `\s+` + sharesOf + symbolGroup + portfolioTail)},
	{re: regexp.MustCompile(`(?i)\b(?:add|buy|purchase)\s+` + vagueWordGroup + `\s+` + sharesOf + symbolGroup + portfolioTail), vagueQuantity: true},
}

// removePatterns match sell-side mutations. The possessive "all my X
// holdings" phrasing restricts the symbol to 3-5 letters so common short
// words ("my", "me") can never be mistaken for a ticker in casual text.
var removePatterns = []pattern{
	{re: regexp.MustCompile(`(?i)\b(?:remove|sell|delete|drop)\s+` + qtyGroup + `\s+` + sharesOf + symbolGroup + portfolioTail)},
	{re: regexp.MustCompile(`(?i)\b(?:remove|sell|delete)\s+all\s+(?:of\s+)?my\s+(?P<symbol>[A-Za-z]{3,5})(?:\s+(?:holdings?|shares?|stocks?|position))?` + portfolioTail)},
	{re: regexp.MustCompile(`(?i)\b(?:remove|sell|delete|drop)\s+(?:my\s+)?` + symbolGroup + `(?:\s+(?:position|holdings?|shares?|stock))?` + portfolioTail + `\s*$`)},
}

// updatePatterns match in-place edits of an existing position.
var updatePatterns = []pattern{
	{re: regexp.MustCompile(`(?i)\b(?:update|change|set)\s+(?:my\s+)?` + symbolGroup + `\s+(?:quantity|shares?)\s+to\s+` + qtyGroup)},
	{re: regexp.MustCompile(`(?i)\b(?:update|change|set)\s+(?:my\s+)?` + symbolGroup + `\s+(?:price|avg\s+cost|average\s+cost|cost\s+basis)\s+to\s+` + priceGroup)},
	{re: regexp.MustCompile(`(?i)\b(?:update|change|set)\s+(?:my\s+)?` + symbolGroup + `\s+to\s+` + qtyGroup + `\s+shares?\b`)},
	{re: regexp.MustCompile(`(?i)\b(?:update|change)\s+(?:my\s+)?` + symbolGroup + `\s*$`)},
}

// showOverviewPatterns match portfolio-wide reads. They are tried before
// the specific-asset patterns because a portfolio-wide phrase can loosely
// match a single-symbol pattern too; the overview reading wins.
var showOverviewPatterns = []pattern{
	{re: regexp.MustCompile(`(?i)\b(?:show|list|display|view)\s+(?:me\s+)?(?:all\s+)?(?:of\s+)?(?:my\s+)?(?:portfolio|positions|holdings|investments)\b`)},
	{re: regexp.MustCompile(`(?i)\bwhat(?:'s|\s+is)\s+in\s+my\s+portfolio\b`)},
	{re: regexp.MustCompile(`(?i)\b(?:my\s+)?portfolio\s+(?:summary|overview)\b`)},
	{re: regexp.MustCompile(`(?i)\b(?:show|list|display|view)\s+(?:me\s+)?(?:my\s+)?(?P<portfolio>[A-Za-z][A-Za-z ]*?)\s+portfolio\b`)},
}

// showSpecificPatterns match single-symbol reads.
var showSpecificPatterns = []pattern{
	{re: regexp.MustCompile(`(?i)\b(?:show|display|view)\s+(?:me\s+)?(?:my\s+)?` + symbolGroup + `(?:\s+(?:position|shares?|holdings?|stock))?\s*$`)},
	{re: regexp.MustCompile(`(?i)\bhow\s+(?:much|many)\s+` + symbolGroup + `\s+do\s+i\s+(?:have|own)\b`)},
}

// companyTickers maps well-known company names to their ticker. Names the
// table does not know fall back to an upper-cased literal with reduced
// confidence.
var companyTickers = map[string]string{
	"apple":     "AAPL",
	"tesla":     "TSLA",
	"microsoft": "MSFT",
	"google":    "GOOGL",
	"alphabet":  "GOOGL",
	"amazon":    "AMZN",
	"nvidia":    "NVDA",
	"meta":      "META",
	"facebook":  "META",
	"netflix":   "NFLX",
	"disney":    "DIS",
	"intel":     "INTC",
	"boeing":    "BA",
	"coinbase":  "COIN",
	"palantir":  "PLTR",
	"nike":      "NKE",
	"starbucks": "SBUX",
	"walmart":   "WMT",
	"visa":      "V",
	"ford":      "F",
}

// vagueQuantityWords flags quantity phrasings the classifier cannot turn
// into a number; presence routes add intents to hybrid completion.
var vagueQuantityWords = regexp.MustCompile(`(?i)\b(?:some|a\s+few|few|a\s+couple\s+of|couple|several|more|a\s+bunch\s+of)\b`)

// vagueRemoveWords flags remove requests that name a quality rather than a
// symbol or amount ("sell my losing positions").
var vagueRemoveWords = regexp.MustCompile(`(?i)\b(?:underperforming|losing|bad|worst|weakest)\b`)

// vaguePluralTargets flags update requests aimed at unnamed groups of
// holdings.
var vaguePluralTargets = regexp.MustCompile(`(?i)\b(?:positions|holdings)\b`)
