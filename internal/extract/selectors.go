package extract

// Selectors names the CSS selectors and attributes used to locate records in
// a rendered application page. Empty fields fall back to DefaultSelectors.
type Selectors struct {
	Header          string `mapstructure:"header"`
	Title           string `mapstructure:"title"`
	InfoCube        string `mapstructure:"info_cube"`
	Description     string `mapstructure:"description"`
	CarouselImage   string `mapstructure:"carousel_image"`
	ImageAttr       string `mapstructure:"image_attr"`
	Comment         string `mapstructure:"comment"`
	AccountAttr     string `mapstructure:"account_attr"`
	Username        string `mapstructure:"username"`
	Body            string `mapstructure:"body"`
	RatingFill      string `mapstructure:"rating_fill"`
	RatingContainer string `mapstructure:"rating_container"`
	AppLink         string `mapstructure:"app_link"`
}

// DefaultSelectors matches the storefront's detail and listing page markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Header:          "section.DetailsPageHeader",
		Title:           "h1.AppName",
		InfoCube:        "td.InfoCube__content",
		Description:     "div.AppDescriptionContent",
		CarouselImage:   "div.carousel__inner-content source",
		ImageAttr:       "data-lazy-srcset",
		Comment:         "div.AppComment",
		AccountAttr:     "accountid",
		Username:        "div.AppComment__username",
		Body:            "div.AppComment__body",
		RatingFill:      "div.rating__fill",
		RatingContainer: "div.AppComment__rating",
		AppLink:         "a.SimpleAppItem.SimpleAppItem--single",
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.Header, d.Header)
	fill(&s.Title, d.Title)
	fill(&s.InfoCube, d.InfoCube)
	fill(&s.Description, d.Description)
	fill(&s.CarouselImage, d.CarouselImage)
	fill(&s.ImageAttr, d.ImageAttr)
	fill(&s.Comment, d.Comment)
	fill(&s.AccountAttr, d.AccountAttr)
	fill(&s.Username, d.Username)
	fill(&s.Body, d.Body)
	fill(&s.RatingFill, d.RatingFill)
	fill(&s.RatingContainer, d.RatingContainer)
	fill(&s.AppLink, d.AppLink)
	return s
}
