package catalog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"cot-lab/internal/domain"
	"cot-lab/internal/logging"
	"cot-lab/internal/storage"
)

// Normalizer maps a taxonomy string to its index key. The same normalizer is
// applied when building and when querying.
type Normalizer func(string) string

// DefaultNormalizer lowercases and collapses runs of whitespace.
func DefaultNormalizer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// KnownGroups are the commodity groups published by the CFTC. Their buckets
// exist even when the catalog lists no contract under them.
var KnownGroups = []string{
	"AGRICULTURE",
	"NATURAL RESOURCES",
	"FINANCIAL INSTRUMENTS",
}

// Child is one key below an index level.
type Child struct {
	Key  string `json:"key"`  // normalized
	Name string `json:"name"` // display name of the first contract seen
}

// ContractSet groups the contracts of one market and exchange name by report type.
type ContractSet struct {
	MarketAndExchangeName string             `json:"market_and_exchange_name"`
	FinancialFutures      []*domain.Contract `json:"financial_futures"`
	Disaggregated         []*domain.Contract `json:"disaggregated"`
	Legacy                []*domain.Contract `json:"legacy"`
}

// ByReportType returns the contracts listed under one report type.
func (s *ContractSet) ByReportType(reportType domain.ReportType) []*domain.Contract {
	switch reportType {
	case domain.ReportFinancialFutures:
		return s.FinancialFutures
	case domain.ReportDisaggregated:
		return s.Disaggregated
	case domain.ReportLegacy:
		return s.Legacy
	}
	panic(fmt.Sprintf("unreachable report type %q", string(reportType)))
}

// OldestReportMs returns the oldest report date across the set, or
// math.MaxInt64 for an empty set.
func (s *ContractSet) OldestReportMs() int64 {
	oldest := int64(math.MaxInt64)
	for _, rt := range domain.AllReportTypes {
		for _, c := range s.ByReportType(rt) {
			if c.OldestReportMs < oldest {
				oldest = c.OldestReportMs
			}
		}
	}
	return oldest
}

type marketNode struct {
	name   string
	byType map[domain.ReportType][]*domain.Contract
}

type commodityNode struct {
	name    string
	markets map[string]*marketNode
}

type subgroupNode struct {
	name        string
	commodities map[string]*commodityNode
}

type groupNode struct {
	name      string
	subgroups map[string]*subgroupNode
}

// Index is a group -> subgroup -> commodity -> market -> report type tree over
// a catalog. It is rebuilt whenever the catalog changes and is read-only
// once built.
type Index struct {
	normalize Normalizer
	groups    map[string]*groupNode
	size      int
	skipped   int
}

// IndexOption configures BuildIndex.
type IndexOption func(*indexConfig)

type indexConfig struct {
	normalize   Normalizer
	knownGroups []string
	logger      *logrus.Entry
}

// WithNormalizer sets the taxonomy normalizer.
func WithNormalizer(n Normalizer) IndexOption {
	return func(c *indexConfig) {
		c.normalize = n
	}
}

// WithKnownGroups replaces the pre-created group buckets.
func WithKnownGroups(groups []string) IndexOption {
	return func(c *indexConfig) {
		c.knownGroups = groups
	}
}

// WithIndexLogger sets the logger used for skipped and unrecognized entries.
func WithIndexLogger(logger *logrus.Entry) IndexOption {
	return func(c *indexConfig) {
		c.logger = logger
	}
}

// BuildIndex indexes contracts in one pass. Contracts without full taxonomy
// are skipped. A group outside the known groups gets a new bucket and a
// warning rather than failing the build.
func BuildIndex(contracts []*domain.Contract, opts ...IndexOption) *Index {
	cfg := indexConfig{normalize: DefaultNormalizer, knownGroups: KnownGroups}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := logging.OrDiscard(cfg.logger)

	idx := &Index{
		normalize: cfg.normalize,
		groups:    make(map[string]*groupNode, len(cfg.knownGroups)),
	}
	for _, g := range cfg.knownGroups {
		idx.groups[idx.normalize(g)] = &groupNode{name: g, subgroups: make(map[string]*subgroupNode)}
	}

	for _, c := range contracts {
		if c == nil || !c.HasTaxonomy() || !c.ReportType.IsValid() {
			idx.skipped++
			if c != nil {
				log.WithFields(logrus.Fields{
					"market_code": c.MarketCode,
					"report_type": c.ReportType,
				}).Debug("skipping contract without taxonomy")
			}
			continue
		}

		gk := idx.normalize(c.Group)
		g, ok := idx.groups[gk]
		if !ok {
			log.WithFields(logrus.Fields{
				"group":       c.Group,
				"market_code": c.MarketCode,
			}).Warn("unrecognized commodity group, creating bucket")
			g = &groupNode{name: c.Group, subgroups: make(map[string]*subgroupNode)}
			idx.groups[gk] = g
		}

		sk := idx.normalize(c.Subgroup)
		s, ok := g.subgroups[sk]
		if !ok {
			s = &subgroupNode{name: c.Subgroup, commodities: make(map[string]*commodityNode)}
			g.subgroups[sk] = s
		}

		ck := idx.normalize(c.CommodityName)
		cm, ok := s.commodities[ck]
		if !ok {
			cm = &commodityNode{name: c.CommodityName, markets: make(map[string]*marketNode)}
			s.commodities[ck] = cm
		}

		mk := idx.normalize(c.MarketAndExchangeName)
		m, ok := cm.markets[mk]
		if !ok {
			m = &marketNode{name: c.MarketAndExchangeName, byType: make(map[domain.ReportType][]*domain.Contract)}
			cm.markets[mk] = m
		}

		m.byType[c.ReportType] = append(m.byType[c.ReportType], c)
		idx.size++
	}

	return idx
}

// Len returns the number of indexed contracts.
func (idx *Index) Len() int {
	return idx.size
}

// Skipped returns the number of contracts left out for missing taxonomy.
func (idx *Index) Skipped() int {
	return idx.skipped
}

// Groups lists the group keys.
func (idx *Index) Groups() []Child {
	out := make([]Child, 0, len(idx.groups))
	for k, g := range idx.groups {
		out = append(out, Child{Key: k, Name: g.name})
	}
	return sortChildren(out)
}

// Subgroups lists the subgroup keys of a group.
func (idx *Index) Subgroups(group string) ([]Child, error) {
	g, err := idx.group(group)
	if err != nil {
		return nil, err
	}
	out := make([]Child, 0, len(g.subgroups))
	for k, s := range g.subgroups {
		out = append(out, Child{Key: k, Name: s.name})
	}
	return sortChildren(out), nil
}

// Commodities lists the commodity keys of a subgroup.
func (idx *Index) Commodities(group, subgroup string) ([]Child, error) {
	s, err := idx.subgroup(group, subgroup)
	if err != nil {
		return nil, err
	}
	out := make([]Child, 0, len(s.commodities))
	for k, c := range s.commodities {
		out = append(out, Child{Key: k, Name: c.name})
	}
	return sortChildren(out), nil
}

// Markets lists the market-and-exchange-name keys of a commodity.
func (idx *Index) Markets(group, subgroup, commodity string) ([]Child, error) {
	c, err := idx.commodity(group, subgroup, commodity)
	if err != nil {
		return nil, err
	}
	out := make([]Child, 0, len(c.markets))
	for k, m := range c.markets {
		out = append(out, Child{Key: k, Name: m.name})
	}
	return sortChildren(out), nil
}

// Lookup resolves one contract by taxonomy path, report type and market code.
func (idx *Index) Lookup(group, subgroup, commodity, market string, reportType domain.ReportType, marketCode string) (*domain.Contract, error) {
	c, err := idx.commodity(group, subgroup, commodity)
	if err != nil {
		return nil, err
	}
	m, ok := c.markets[idx.normalize(market)]
	if !ok {
		return nil, fmt.Errorf("%w: market %q", storage.ErrNotFound, market)
	}
	for _, ct := range m.byType[reportType] {
		if ct.MarketCode == marketCode {
			return ct, nil
		}
	}
	return nil, fmt.Errorf("%w: contract %s/%s under %q", storage.ErrNotFound, reportType, marketCode, market)
}

// ContractSets lists one set per market of a commodity, oldest history first.
func (idx *Index) ContractSets(group, subgroup, commodity string) ([]ContractSet, error) {
	c, err := idx.commodity(group, subgroup, commodity)
	if err != nil {
		return nil, err
	}

	sets := make([]ContractSet, 0, len(c.markets))
	for _, m := range c.markets {
		sets = append(sets, ContractSet{
			MarketAndExchangeName: m.name,
			FinancialFutures:      sortedByOldest(m.byType[domain.ReportFinancialFutures]),
			Disaggregated:         sortedByOldest(m.byType[domain.ReportDisaggregated]),
			Legacy:                sortedByOldest(m.byType[domain.ReportLegacy]),
		})
	}

	sort.Slice(sets, func(i, j int) bool {
		oi, oj := sets[i].OldestReportMs(), sets[j].OldestReportMs()
		if oi != oj {
			return oi < oj
		}
		return sets[i].MarketAndExchangeName < sets[j].MarketAndExchangeName
	})
	return sets, nil
}

func (idx *Index) group(group string) (*groupNode, error) {
	g, ok := idx.groups[idx.normalize(group)]
	if !ok {
		return nil, fmt.Errorf("%w: group %q", storage.ErrNotFound, group)
	}
	return g, nil
}

func (idx *Index) subgroup(group, subgroup string) (*subgroupNode, error) {
	g, err := idx.group(group)
	if err != nil {
		return nil, err
	}
	s, ok := g.subgroups[idx.normalize(subgroup)]
	if !ok {
		return nil, fmt.Errorf("%w: subgroup %q", storage.ErrNotFound, subgroup)
	}
	return s, nil
}

func (idx *Index) commodity(group, subgroup, commodity string) (*commodityNode, error) {
	s, err := idx.subgroup(group, subgroup)
	if err != nil {
		return nil, err
	}
	c, ok := s.commodities[idx.normalize(commodity)]
	if !ok {
		return nil, fmt.Errorf("%w: commodity %q", storage.ErrNotFound, commodity)
	}
	return c, nil
}

func sortChildren(children []Child) []Child {
	sort.Slice(children, func(i, j int) bool {
		return children[i].Key < children[j].Key
	})
	return children
}

func sortedByOldest(contracts []*domain.Contract) []*domain.Contract {
	out := make([]*domain.Contract, len(contracts))
	copy(out, contracts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OldestReportMs < out[j].OldestReportMs
	})
	return out
}
