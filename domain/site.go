package domain

// Section is a category listing page mounted at /<slug>.
type Section struct {
	Slug        string
	Title       string
	Description string
	EmptyTitle  string
	EmptyBody   string
	Accent      string
}

func (s Section) Path() string {
	return "/" + s.Slug
}

type Site struct {
	Title       string
	Tagline     string
	Description string
	Footer      string
	StudioURL   string
	EmptyTitle  string
	EmptyBody   string
	Sections    []Section
}

func (s Site) Section(slug string) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.Slug == slug {
			return sec, true
		}
	}
	return Section{}, false
}

func (s Site) SectionPaths() []string {
	paths := make([]string, 0, len(s.Sections))
	for _, sec := range s.Sections {
		paths = append(paths, sec.Path())
	}
	return paths
}

func DefaultSite() Site {
	return Site{
		Title:       "Break Your Bell Jar",
		Tagline:     "Gentle rebellion",
		Description: "A space for stories, reflections, and moments of clarity",
		Footer:      "A space to breathe and create.",
		StudioURL:   "http://localhost:3333",
		EmptyTitle:  "Your canvas is clear",
		EmptyBody:   "Start your first story in the Studio to bring this space to life.",
		Sections: []Section{
			{
				Slug:       "reflections",
				Title:      "Reflections",
				EmptyTitle: "No reflections yet",
				EmptyBody:  `Create your first reflection in the Studio and assign it the "Reflections" category`,
				Accent:     "amber",
			},
			{
				Slug:        "opinions",
				Title:       "Opinions",
				Description: "Thoughtful perspectives on the world around us",
				EmptyTitle:  "No opinions yet",
				EmptyBody:   `Create your first opinion piece in the Studio and assign it the "Opinions" category`,
				Accent:      "sky",
			},
		},
	}
}
