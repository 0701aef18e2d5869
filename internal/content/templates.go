package content

import (
	"sort"
	"strconv"
	"strings"

	"postpilot/internal/core"
)

// categoryGuide is the prompt material for one category.
type categoryGuide struct {
	Purpose  string
	Style    string
	Examples []string
	Fallback []string
}

var guides = map[core.Category]categoryGuide{
	core.CategoryEducational: {
		Purpose: "teach the audience something useful about the industry",
		Style:   "Write in an informative, helpful tone. Lead with a surprising fact or practical tip.",
		Examples: []string{
			"5 things every customer should know about ...",
			"How to choose the right ...",
			"Common mistakes people make with ...",
		},
		Fallback: []string{
			"{count} tips for getting the most out of {product}",
			"What most people get wrong about {industry}",
			"How {business} approaches {product}: a quick guide",
			"Beginner's guide to {industry} for {audience}",
			"The questions {audience} ask us most about {product}",
			"Myth vs fact: {industry} edition",
			"How to tell quality {product} from the rest",
			"Seasonal advice from the {business} team",
		},
	},
	core.CategoryPromotional: {
		Purpose: "showcase a product, service or offer",
		Style:   "Write in an enthusiastic, persuasive tone. Focus on benefits, not features.",
		Examples: []string{
			"Introducing our ...",
			"Limited time: ...",
			"Why customers choose ...",
		},
		Fallback: []string{
			"Why {audience} love our {product}",
			"Spotlight on {product} at {business}",
			"This week only at {business}: {product}",
			"What makes {business} different in {industry}",
			"Meet our most popular {product}",
			"The perfect time to try {product}",
		},
	},
	core.CategoryEngagement: {
		Purpose: "start a conversation and invite replies",
		Style:   "Write in a friendly, conversational tone. End with a question.",
		Examples: []string{
			"Which do you prefer: ... or ...?",
			"Tell us about your favorite ...",
			"Caption this!",
		},
		Fallback: []string{
			"What's your favorite {product}? Tell us below",
			"This or that: which {industry} trend are you into?",
			"Share your best {product} moment with us",
			"What should {business} try next?",
			"Fill in the blank: the best thing about {industry} is ___",
			"Poll: how often do you treat yourself to {product}?",
		},
	},
	core.CategoryTestimonial: {
		Purpose: "build trust with customer stories and social proof",
		Style:   "Write in a warm, authentic tone. Tell a short story with a clear outcome.",
		Examples: []string{
			"How one customer ...",
			"What our clients say about ...",
		},
		Fallback: []string{
			"A customer story: why they keep coming back to {business}",
			"What {audience} say about our {product}",
			"From first visit to regular: a {business} story",
			"Thank you to our community for another great month",
		},
	},
	core.CategoryBehindScenes: {
		Purpose: "show the people and process behind the business",
		Style:   "Write in a personal, transparent tone. Show real moments from the team.",
		Examples: []string{
			"A day in the life at ...",
			"Meet the team behind ...",
		},
		Fallback: []string{
			"A day in the life at {business}",
			"Meet the team behind {business}",
			"How we prepare our {product}",
			"Our workspace, our people, our passion",
			"What happens before we open our doors",
		},
	},
}

func guideFor(c core.Category) categoryGuide {
	if g, ok := guides[c]; ok {
		return g
	}
	return guides[core.CategoryEducational]
}

// charBudget is the body length instruction per platform.
func charBudget(p core.Platform) int {
	switch p {
	case core.PlatformTwitter:
		return 280
	case core.PlatformLinkedIn:
		return 1300
	default:
		return 2200
	}
}

// hashtagCount is the recommended number of hashtags per platform.
func hashtagCount(p core.Platform) int {
	switch p {
	case core.PlatformTwitter:
		return 2
	case core.PlatformLinkedIn, core.PlatformFacebook, core.PlatformTelegram:
		return 3
	case core.PlatformInstagram:
		return 10
	default:
		return 5
	}
}

var industryHashtags = map[string][]string{
	"restaurant":  {"#Foodie", "#LocalEats", "#RestaurantLife", "#FoodLovers"},
	"food":        {"#Foodie", "#FoodLovers", "#EatLocal"},
	"bakery":      {"#Bakery", "#FreshBaked", "#BakingLove"},
	"coffee":      {"#CoffeeLovers", "#CoffeeTime", "#Cafe"},
	"retail":      {"#ShopLocal", "#SmallBusiness", "#RetailTherapy"},
	"ecommerce":   {"#OnlineShopping", "#ShopNow", "#Ecommerce"},
	"fitness":     {"#Fitness", "#Workout", "#HealthyLiving", "#FitLife"},
	"beauty":      {"#Beauty", "#SelfCare", "#BeautyTips"},
	"real estate": {"#RealEstate", "#HomeSweetHome", "#PropertyTips"},
	"technology":  {"#Tech", "#Innovation", "#DigitalTransformation"},
	"saas":        {"#SaaS", "#Productivity", "#B2B"},
	"consulting":  {"#Consulting", "#BusinessGrowth", "#Strategy"},
	"finance":     {"#Finance", "#MoneyTips", "#FinancialPlanning"},
	"legal":       {"#Legal", "#LawFirm", "#KnowYourRights"},
	"healthcare":  {"#Healthcare", "#Wellness", "#HealthTips"},
	"education":   {"#Education", "#Learning", "#StudentLife"},
}

var genericHashtags = []string{"#SmallBusiness", "#SupportLocal"}

func seedHashtags(industry string) []string {
	key := strings.ToLower(industry)
	names := make([]string, 0, len(industryHashtags))
	for name := range industryHashtags {
		if strings.Contains(key, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var out []string
	for _, name := range names {
		out = append(out, industryHashtags[name]...)
	}
	return append(out, genericHashtags...)
}

// ctaTemplate is a call to action. needs names the profile field it
// interpolates; an empty needs always applies.
type ctaTemplate struct {
	text  string
	needs string
}

var ctaTemplates = map[core.Category][]ctaTemplate{
	core.CategoryEducational: {
		{"Learn more at {website}", "website"},
		{"Questions? Email us at {email}", "email"},
		{"Save this post for later and follow for more tips!", ""},
	},
	core.CategoryPromotional: {
		{"Shop now at {website}", "website"},
		{"Call {phone} to book today", "phone"},
		{"Visit {business} today!", ""},
	},
	core.CategoryEngagement: {
		{"Drop your answer in the comments!", ""},
		{"Tag a friend who needs to see this!", ""},
	},
	core.CategoryTestimonial: {
		{"See what else our customers say at {website}", "website"},
		{"Ready for your own story? Call {phone}", "phone"},
		{"Come see for yourself!", ""},
	},
	core.CategoryBehindScenes: {
		{"Follow along at {website}", "website"},
		{"Follow us for more behind-the-scenes moments!", ""},
	},
}

const genericCTA = "Follow us for more!"

func interpolate(tmpl string, profile *core.BusinessProfile, count int) string {
	product := "our products"
	if len(profile.Products) > 0 {
		product = profile.Products[count%len(profile.Products)]
	}
	audience := profile.TargetAudience
	if audience == "" {
		audience = "our customers"
	}
	industry := profile.Industry
	if industry == "" {
		industry = "our industry"
	}
	business := profile.BusinessName
	if business == "" {
		business = "our business"
	}
	r := strings.NewReplacer(
		"{business}", business,
		"{industry}", industry,
		"{product}", product,
		"{audience}", audience,
		"{website}", profile.Website,
		"{phone}", profile.Phone,
		"{email}", profile.Email,
		"{count}", strconv.Itoa(3+count%3),
	)
	return r.Replace(tmpl)
}
