package extract

import (
	"errors"
	"net/url"
	"reflect"
	"testing"

	"github.com/furqank73/Web-Scraping/internal/models"
)

const restaurantPage = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Organization","name":"Yellow Pages"}</script>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": ["Restaurant"],
  "@id": "https://www.yellowpages.com/new-york-ny/mip/joes-pizza-12345678",
  "name": "Joe's Pizza",
  "telephone": "212-555-0134",
  "url": "https://joespizza.com",
  "priceRange": "$$",
  "servesCuisine": ["Pizza", "Italian"],
  "address": {"@type": "PostalAddress", "streetAddress": "7 Carmine St", "addressLocality": "New York", "addressRegion": "NY", "postalCode": "10014"},
  "geo": {"latitude": 40.73, "longitude": "-74.0"},
  "aggregateRating": {"ratingValue": "4.5", "reviewCount": 120},
  "openingHoursSpecification": [{"dayOfWeek": ["https://schema.org/Monday", "Tuesday"], "opens": "11:00", "closes": "22:00"}],
  "review": [{"author": {"name": "Ann"}, "reviewBody": "Great slice", "reviewRating": {"ratingValue": 5}}],
  "hasMenu": "https://joespizza.com/menu"
}
</script></head><body></body></html>`

func TestStructuredExtractor(t *testing.T) {
	x, err := NewStructuredExtractor(StructuredOptions{PreferredTypes: []string{"Restaurant", "LocalBusiness"}})
	if err != nil {
		t.Fatalf("NewStructuredExtractor() error = %v", err)
	}

	fragment, err := x.Extract(mustDoc(t, restaurantPage))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if fragment.Rank != 1 {
		t.Errorf("Rank = %d, want 1", fragment.Rank)
	}

	want := map[string]any{
		models.FieldName:          "Joe's Pizza",
		models.FieldPhone:         "212-555-0134",
		models.FieldWebsite:       "https://joespizza.com",
		models.FieldPriceRange:    "$$",
		models.FieldCuisine:       "Pizza, Italian",
		models.FieldStreetAddress: "7 Carmine St",
		models.FieldCity:          "New York",
		models.FieldState:         "NY",
		models.FieldZipCode:       "10014",
		models.FieldLatitude:      40.73,
		models.FieldLongitude:     -74.0,
		models.FieldRating:        4.5,
		models.FieldReviewCount:   120,
		models.FieldHours:         []string{"Monday, Tuesday: 11:00-22:00"},
		"business_id":             "https://www.yellowpages.com/new-york-ny/mip/joes-pizza-12345678",
		"menu_url":                "https://joespizza.com/menu",
	}
	for key, value := range want {
		if got := fragment.Fields[key]; !reflect.DeepEqual(got, value) {
			t.Errorf("%s = %#v, want %#v", key, got, value)
		}
	}

	reviews, ok := fragment.Fields["reviews"].([]map[string]any)
	if !ok || len(reviews) != 1 {
		t.Fatalf("reviews = %#v, want 1 review", fragment.Fields["reviews"])
	}
	if reviews[0]["author"] != "Ann" || reviews[0]["rating"] != 5.0 {
		t.Errorf("review = %v", reviews[0])
	}
}

func TestStructuredExtractor_AddressString(t *testing.T) {
	x, _ := NewStructuredExtractor(StructuredOptions{})
	page := `<script type="application/ld+json">{"@type":"LocalBusiness","name":"Shop","address":"7 Carmine St, New York, NY 10014"}</script>`

	fragment, err := x.Extract(mustDoc(t, page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if fragment.Fields[models.FieldCity] != "New York" || fragment.Fields[models.FieldZipCode] != "10014" {
		t.Errorf("address = %v", fragment.Fields)
	}
}

func TestStructuredExtractor_Malformed(t *testing.T) {
	x, _ := NewStructuredExtractor(StructuredOptions{})
	page := `<script type="application/ld+json">{"@type": "Restaurant", "name": </script>`

	fragment, err := x.Extract(mustDoc(t, page))
	if !errors.Is(err, models.ErrMalformedStructuredData) {
		t.Errorf("error = %v, want ErrMalformedStructuredData", err)
	}
	if !fragment.Empty() {
		t.Errorf("无效数据块不应产出字段: %v", fragment.Fields)
	}
}

func TestStructuredExtractor_InvalidMapping(t *testing.T) {
	_, err := NewStructuredExtractor(StructuredOptions{Fields: []FieldMapping{{Field: "name", Keys: []string{"name"}, Kind: "blob"}}})
	if err == nil {
		t.Error("无效的取值方式应返回错误")
	}
}

const moreInfoPage = `<html><body>
<section id="business-info"><dl>
<dt>Payment method</dt><dd>visa, mastercard</dd>
<dt>Regular Hours</dt><dd>Mon - Fri 9:00 am - 5:00 pm</dd>
<dt>Categories</dt><dd><a href="/c/pizza">Pizza</a>, <a href="/c/italian">Italian Restaurants</a></dd>
<dt>Neighborhoods</dt><dd><a href="/n/wv">West Village</a></dd>
<dt>Email</dt><dd><a href="mailto:info@joespizza.com">Email Business</a></dd>
<dt>Extra Links</dt><dd><a href="https://www.yellowpages.com/x">YP</a> <a href="https://joespizza.com/?utm_source=yp">Site</a></dd>
<dt>Other Information</dt><dd>Cuisines: Pizza, Italian Price Range: Moderate</dd>
</dl></section>
</body></html>`

func testSecondaryOptions() SecondaryOptions {
	return SecondaryOptions{
		Containers: []string{"#business-info", "dl"},
		KeyAliases: []KeyAlias{
			{Match: "payment", Field: models.FieldPaymentMethods},
			{Match: "hours", Field: models.FieldHours},
		},
		LinkListKeys: []string{"categories", "neighborhoods"},
		OtherInfoKey: "other_information",
		OtherInfoFields: map[string]string{
			"Cuisines":    models.FieldCuisine,
			"Price Range": models.FieldPriceRangeDescription,
		},
	}
}

func TestSecondaryExtractor(t *testing.T) {
	x, err := NewSecondaryExtractor(testSecondaryOptions(), []string{"yellowpages.com"})
	if err != nil {
		t.Fatalf("NewSecondaryExtractor() error = %v", err)
	}
	base, _ := url.Parse("https://www.yellowpages.com/new-york-ny/mip/joes-pizza-12345678")

	fragment := x.Extract(mustDoc(t, moreInfoPage), base)
	if fragment.Rank != 2 {
		t.Errorf("Rank = %d, want 2", fragment.Rank)
	}

	want := map[string]string{
		models.FieldPaymentMethods:        "visa, mastercard",
		models.FieldHours:                 "Mon - Fri 9:00 am - 5:00 pm",
		models.FieldCategories:            "Pizza, Italian Restaurants",
		models.FieldNeighborhoods:         "West Village",
		models.FieldEmail:                 "info@joespizza.com",
		models.FieldWebsite:               "https://joespizza.com/?utm_source=yp",
		models.FieldCuisine:               "Pizza, Italian",
		models.FieldPriceRangeDescription: "Moderate",
	}
	for key, value := range want {
		if got := fragment.Fields[key]; got != value {
			t.Errorf("%s = %#v, want %q", key, got, value)
		}
	}
}

func TestDOMExtractor(t *testing.T) {
	x, err := NewDOMExtractor(DOMOptions{Fields: []FieldRule{
		{Field: models.FieldName, Selectors: []string{".business-name", "h1"}},
		{Field: models.FieldPhone, Selectors: []string{".phone", `a[href^="tel:"]`}, Attr: "href", Strip: "tel:"},
		{Field: models.FieldWebsite, Selectors: []string{"a.website-link"}, Attr: "href", Kind: KindURL},
		{Field: models.FieldCategories, Selectors: []string{".categories a"}, Join: ", "},
		{Field: models.FieldHours, Selectors: []string{".hours"}},
	}}, []string{"yellowpages.com"})
	if err != nil {
		t.Fatalf("NewDOMExtractor() error = %v", err)
	}

	page := `<body>
		<h1>  Joe's
		Pizza </h1>
		<a href="tel:+1-212-555-0134">Call</a>
		<a class="website-link" href="https://www.yellowpages.com/redirect">YP</a>
		<a class="website-link" href="http://joespizza.com">Visit</a>
		<div class="categories"><a>Pizza</a><a>Italian</a><a>Pizza</a></div>
	</body>`
	fragment := x.Extract(mustDoc(t, page), nil)

	want := map[string]string{
		models.FieldName:       "Joe's Pizza",
		models.FieldPhone:      "+1-212-555-0134",
		models.FieldWebsite:    "http://joespizza.com",
		models.FieldCategories: "Pizza, Italian",
	}
	for key, value := range want {
		if got := fragment.Fields[key]; got != value {
			t.Errorf("%s = %#v, want %q", key, got, value)
		}
	}
	if _, ok := fragment.Fields[models.FieldHours]; ok {
		t.Error("未命中的字段不应出现")
	}
}

func TestEnricher(t *testing.T) {
	e := NewEnricher(EnrichmentOptions{})
	page := `<body>
		<a href="https://www.facebook.com/joespizza">fb</a>
		<a href="https://www.facebook.com/joespizza">fb again</a>
		<a href="https://instagram.com/joespizza">ig</a>
		<a href="https://example.org/">other</a>
		<p>Contact test@example.com or owner@joespizza.com</p>
	</body>`

	fragment := e.Extract(mustDoc(t, page), nil)
	if fragment.Rank != 4 {
		t.Errorf("Rank = %d, want 4", fragment.Rank)
	}

	social, ok := fragment.Fields["social_media"].([]map[string]any)
	if !ok || len(social) != 2 {
		t.Fatalf("social_media = %#v, want 2 links", fragment.Fields["social_media"])
	}
	if social[0]["platform"] != "facebook" || social[1]["platform"] != "instagram" {
		t.Errorf("platforms = %v, %v", social[0]["platform"], social[1]["platform"])
	}
	if got := fragment.Fields[models.FieldEmail]; got != "owner@joespizza.com" {
		t.Errorf("email = %v, want owner@joespizza.com", got)
	}
}

func TestEnricher_Mailto(t *testing.T) {
	e := NewEnricher(EnrichmentOptions{})
	page := `<a href="mailto:hello@joespizza.com?subject=Hi">mail</a>`
	if got := e.Extract(mustDoc(t, page), nil).Fields[models.FieldEmail]; got != "hello@joespizza.com" {
		t.Errorf("email = %v, want hello@joespizza.com", got)
	}
}
