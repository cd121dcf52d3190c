package adops

import "github.com/tinytelemetry/adpulse/internal/model"

var creativeTypes = []string{
	model.CreativeImage,
	model.CreativeHTML5,
	model.CreativeThirdPartyTag,
	model.CreativeVideo,
}

var creativeStatuses = []string{
	model.CreativeActive,
	model.CreativePaused,
	model.CreativeError,
	model.CreativePendingReview,
}

var sizes = []string{"300x250", "728x90", "160x600", "320x50", "300x600", "970x250", "320x480"}

var advertisers = []string{
	"TechCorp Inc.",
	"Fashion Forward",
	"AutoDrive Motors",
	"FoodieDelight",
	"TravelEase",
	"FinanceFirst",
	"HealthPlus",
	"GameZone Studios",
	"EcoGreen Products",
	"LuxuryBrands Co.",
}

var creativeNames = []string{
	"Summer Sale Banner",
	"Holiday Promo",
	"Brand Awareness",
	"Product Launch",
	"Retargeting Campaign",
	"Mobile App Install",
	"Video Pre-roll",
	"Native Content",
	"Rich Media Interactive",
	"Dynamic Creative",
}

var creativeFailureReasons = []string{
	"Creative timeout exceeded",
	"Invalid creative format",
	"Third-party script blocked",
	"SSL certificate error",
	"Creative size mismatch",
	"Network request failed",
	"CORS policy violation",
	"Malware detected",
	"Policy violation",
}

var failedStatuses = []string{model.EventFailed, model.EventTimeout, model.EventBlocked}

var telemetryReasons = map[string][]string{
	model.EventFailed: {
		"Creative load error",
		"Network timeout",
		"Invalid response",
		"Script error",
	},
	model.EventTimeout: {"Request timeout after 3000ms", "Bid response timeout", "Render timeout"},
	model.EventBlocked: {
		"Ad blocker detected",
		"Brand safety violation",
		"Geo restriction",
		"Device restriction",
	},
}

type country struct {
	name   string
	code   string
	weight int
}

var countries = []country{
	{"United States", "US", 35},
	{"United Kingdom", "UK", 15},
	{"Germany", "DE", 12},
	{"France", "FR", 8},
	{"Canada", "CA", 7},
	{"Australia", "AU", 6},
	{"India", "IN", 5},
	{"Japan", "JP", 4},
	{"Brazil", "BR", 4},
	{"Netherlands", "NL", 4},
}

var regions = []string{"California", "New York", "Texas", "London", "Bavaria", "Ontario", "Maharashtra"}

var cities = []string{"New York", "Los Angeles", "London", "Berlin", "Paris", "Toronto", "Mumbai", "Tokyo"}

var deviceTypes = []string{"desktop", "mobile", "tablet", "ctv"}

var operatingSystems = []string{"Windows 11", "macOS 14", "iOS 17", "Android 14", "Chrome OS", "tvOS"}

var browsers = []string{"Chrome 120", "Safari 17", "Firefox 121", "Edge 120", "Samsung Browser"}

var campaignNames = []string{
	"Q4 Brand Campaign",
	"Holiday Season Push",
	"New Product Launch",
	"Retention Campaign",
	"Awareness Drive",
	"Performance Max",
	"Mobile First Initiative",
	"Video Engagement",
	"Cross-Platform Reach",
	"Lookalike Audience",
}

const (
	telemetryCreativePool = 15
	telemetrySlotPool     = 8
	servedProbability     = 0.7
	creativeFailureChance = 0.15
	idAlphabet            = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idLength              = 7
)
