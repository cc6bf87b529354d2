package crawl

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all crawl sources.
type Registry struct {
	Bidding BiddingSourceConfig `yaml:"bidding"`
	Forum   ForumSourceConfig   `yaml:"forum"`
}

// BiddingSourceConfig describes the bidding-notice site: entry URL, form
// controls, and the selectors the list and detail parsers rely on.
type BiddingSourceConfig struct {
	BaseURL      string `yaml:"base_url"`
	QueryURL     string `yaml:"query_url"`
	CategoryType string `yaml:"category_type"` // value for the notice-type filter
	MaxPages     int    `yaml:"max_pages,omitempty"`

	Controls  ControlConfig        `yaml:"controls"`
	Selectors ListSelectorConfig   `yaml:"selectors"`
	Detail    DetailSelectorConfig `yaml:"detail"`

	Throttle ThrottleConfig `yaml:"throttle,omitempty"`
}

// ControlConfig names the search-form controls on the query page.
type ControlConfig struct {
	KeywordInput string `yaml:"keyword_input"`
	TypeSelect   string `yaml:"type_select"`
	SearchButton string `yaml:"search_button"`
}

// ListSelectorConfig names the result-list structure.
type ListSelectorConfig struct {
	Container string `yaml:"container"`
	Item      string `yaml:"item"`
	Date      string `yaml:"date"`
	NextPage  string `yaml:"next_page_text"`
}

// DetailSelectorConfig names the notice detail-page structure.
type DetailSelectorConfig struct {
	Title   string `yaml:"title"`
	Date    string `yaml:"date"`
	Content string `yaml:"content"`
}

// ThrottleConfig bounds the random delay between sequential fetches.
// Zero values disable the delay (tests rely on this).
type ThrottleConfig struct {
	MinSeconds float64 `yaml:"min_seconds,omitempty"`
	MaxSeconds float64 `yaml:"max_seconds,omitempty"`
}

// ForumSourceConfig describes the forum hot-post listing.
type ForumSourceConfig struct {
	BaseURL     string `yaml:"base_url"`
	HotURL      string `yaml:"hot_url"`
	ListItem    string `yaml:"list_item"`
	TitleLink   string `yaml:"title_link"`
	UserLink    string `yaml:"user_link"`
	PostedAt    string `yaml:"posted_at"`
	ArticleBody string `yaml:"article_body"`
	Workers     int    `yaml:"workers,omitempty"`
}

// LoadRegistry reads the sources config from the file at path when one
// exists there, falling back to the embedded sources.yaml otherwise.
// Environment variables in the YAML (e.g. ${BIDDING_BASE_URL}) are expanded
// before decoding.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
		if err != nil {
			return nil, err
		}
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("sources config: %w", err)
	}

	return &reg, nil
}
