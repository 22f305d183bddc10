package categorize

import (
	"strings"

	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// Other is the catch-all category for records matching no keyword
const Other = "Other"

// DefaultCategories returns the fixed, ordered category list used for controller logs
func DefaultCategories() []types.Category {
	keywords := []string{
		"Power state change",
		"Unexpected sense",
		"medium error",
		"Uncorrectable",
		"recovery",
		"Fatal firmware error",
		"DEGRADED",
		"State change on VD",
		"State change on PD",
		"Consistency Check st",
		"Consistency Check done",
		"abort",
		"inconsistent",
		"Battery",
		"Rebuild complete",
		"Rebuild failed",
		"Rebuild automatically started",
		"Rebuild started",
	}

	categories := make([]types.Category, len(keywords))
	for i, kw := range keywords {
		categories[i] = types.Category{Name: kw, Keyword: kw}
	}
	return categories
}

// Matches reports whether text contains keyword, ignoring case
func Matches(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// Buckets maps every category to the indices of the records it holds.
// Membership overlaps: a record is listed under every keyword it contains.
type Buckets struct {
	records []types.LogicalRecord
	order   []string
	members map[string][]int
}

// Names returns the category names in order, Other last
func (b *Buckets) Names() []string {
	names := make([]string, len(b.order))
	copy(names, b.order)
	return names
}

// Indices returns the record indices of a category in input order
func (b *Buckets) Indices(name string) []int {
	indices := make([]int, len(b.members[name]))
	copy(indices, b.members[name])
	return indices
}

// Records returns the records of a category in input order
func (b *Buckets) Records(name string) []types.LogicalRecord {
	indices := b.members[name]
	records := make([]types.LogicalRecord, len(indices))
	for i, idx := range indices {
		records[i] = b.records[idx]
	}
	return records
}

// Len returns the number of records in a category
func (b *Buckets) Len(name string) int {
	return len(b.members[name])
}

// Categorizer buckets records by keyword
type Categorizer struct {
	categories []types.Category
	logger     *logging.Logger
}

// New creates a categorizer; nil or empty categories select the defaults
func New(categories []types.Category, logger *logging.Logger) *Categorizer {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Categorizer{
		categories: categories,
		logger:     logger.WithComponent("categorizer"),
	}
}

// Categories returns the fixed categories, without Other
func (c *Categorizer) Categories() []types.Category {
	return append([]types.Category(nil), c.categories...)
}

// Categorize runs one pass per keyword, then an independent pass for Other
func (c *Categorizer) Categorize(records []types.LogicalRecord) *Buckets {
	b := &Buckets{
		records: records,
		order:   make([]string, 0, len(c.categories)+1),
		members: make(map[string][]int, len(c.categories)+1),
	}

	for _, cat := range c.categories {
		c.logger.Debug().Str("category", cat.Name).Msg("Looking for category in reassembled log")

		indices := make([]int, 0)
		for i, rec := range records {
			if Matches(rec.Text, cat.Keyword) {
				indices = append(indices, i)
			}
		}

		if _, seen := b.members[cat.Name]; !seen {
			b.order = append(b.order, cat.Name)
		}
		b.members[cat.Name] = append(b.members[cat.Name], indices...)
	}

	other := make([]int, 0)
	for i, rec := range records {
		if !c.matchesAny(rec.Text) {
			other = append(other, i)
		}
	}
	b.order = append(b.order, Other)
	b.members[Other] = other

	c.logger.Info().
		Int("records", len(records)).
		Int("categories", len(b.order)).
		Int("other", len(other)).
		Msg("Records categorized")

	return b
}

func (c *Categorizer) matchesAny(text string) bool {
	for _, cat := range c.categories {
		if Matches(text, cat.Keyword) {
			return true
		}
	}
	return false
}

// Categorize is a shortcut using the default categories
func Categorize(records []types.LogicalRecord) *Buckets {
	return New(nil, nil).Categorize(records)
}
