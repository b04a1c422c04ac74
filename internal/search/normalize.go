package search

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pgstac-api/internal/core/config"
	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/cql2"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

const (
	LangCQL2Text = "cql2-text"
	LangCQL2JSON = "cql2-json"
	// LangCQLJSON is the legacy dialect that may be combined with query.
	LangCQLJSON = "cql-json"

	MaxLimit = 10000
)

// Normalizer validates requests against the enabled capabilities.
// Safe for concurrent use.
type Normalizer struct {
	ext       config.Extensions
	cql       *cql2.Translator
	noHydrate bool
	validate  *validator.Validate
}

// New returns a Normalizer. noHydrate is forwarded to the backend in the
// conf bag so it skips server-side hydration.
func New(ext config.Extensions, cql *cql2.Translator, noHydrate bool) *Normalizer {
	if cql == nil {
		cql = cql2.NewTranslator(0)
	}
	return &Normalizer{ext: ext, cql: cql, noHydrate: noHydrate, validate: newValidator()}
}

// request is the shape shared by GET and POST before canonicalization.
type request struct {
	Collections []string                  `json:"collections"`
	IDs         []string                  `json:"ids"`
	BBox        []float64                 `json:"bbox" validate:"omitempty,len=4|len=6"`
	Intersects  map[string]any            `json:"intersects"`
	Datetime    string                    `json:"datetime"`
	Q           []string                  `json:"q"`
	Query       map[string]map[string]any `json:"query"`
	Filter      any                       `json:"filter"`
	FilterLang  string                    `json:"filter-lang" validate:"omitempty,oneof=cql-json cql2-json cql2-text"`
	FilterCRS   string                    `json:"filter-crs"`
	SortBy      []model.SortBy            `json:"sortby" validate:"omitempty,dive"`
	Fields      *model.Fields             `json:"fields"`
	Token       string                    `json:"token"`
	Limit       *int                      `json:"limit" validate:"omitempty,min=1,max=10000"`
	Offset      *int                      `json:"offset" validate:"omitempty,min=0"`
	Conf        map[string]any            `json:"conf"`

	// filter-lang used when the client sent none
	defaultLang string
}

// post is the wire form of a POST /search body.
type post struct {
	Collections []string                  `json:"collections"`
	IDs         []string                  `json:"ids"`
	BBox        []float64                 `json:"bbox"`
	Intersects  map[string]any            `json:"intersects"`
	Datetime    string                    `json:"datetime"`
	Q           any                       `json:"q"`
	Query       map[string]map[string]any `json:"query"`
	Filter      any                       `json:"filter"`
	FilterLang  string                    `json:"filter-lang"`
	FilterCRS   string                    `json:"filter-crs"`
	SortBy      []model.SortBy            `json:"sortby"`
	Fields      *model.Fields             `json:"fields"`
	Token       string                    `json:"token"`
	Limit       *int                      `json:"limit"`
	Conf        map[string]any            `json:"conf"`
}

// Search normalizes one item search.
func (n *Normalizer) Search(in Input) (model.SearchRequest, error) {
	var (
		r   request
		err error
	)
	switch v := in.(type) {
	case GetParams:
		r, err = fromQuery(v.Values)
	case *GetParams:
		r, err = fromQuery(v.Values)
	case PostBody:
		r, err = fromBody(v.Raw)
	case *PostBody:
		r, err = fromBody(v.Raw)
	default:
		return model.SearchRequest{}, stacerr.New(stacerr.Internal, fmt.Sprintf("unsupported search input %T", in))
	}
	if err != nil {
		return model.SearchRequest{}, err
	}
	if id := in.collection(); id != "" {
		r.Collections = []string{id}
	}
	return n.canonical(r)
}

func fromQuery(v url.Values) (request, error) {
	r := request{
		Collections: list(v, "collections"),
		IDs:         list(v, "ids"),
		Datetime:    strings.TrimSpace(v.Get("datetime")),
		Q:           list(v, "q"),
		FilterLang:  strings.TrimSpace(v.Get("filter-lang")),
		FilterCRS:   strings.TrimSpace(v.Get("filter-crs")),
		Token:       v.Get("token"),
		defaultLang: LangCQL2Text,
	}
	if s := v.Get("bbox"); s != "" {
		b, err := model.ParseBBox(s)
		if err != nil {
			return r, stacerr.Validationf("Invalid bbox: %v", err)
		}
		r.BBox = b
	}
	if s := v.Get("intersects"); s != "" {
		if err := decodeParam("intersects", s, &r.Intersects); err != nil {
			return r, err
		}
	}
	if s := v.Get("query"); s != "" {
		if err := decodeParam("query", s, &r.Query); err != nil {
			return r, err
		}
	}
	if s := v.Get("filter"); s != "" {
		r.Filter = s
	}
	if s := v.Get("limit"); s != "" {
		l, err := intParam("limit", s)
		if err != nil {
			return r, err
		}
		r.Limit = &l
	}
	if tokens := list(v, "sortby"); len(tokens) > 0 {
		r.SortBy = parseSortBy(tokens)
	}
	if tokens := list(v, "fields"); len(tokens) > 0 {
		r.Fields = parseFields(tokens)
	}
	return r, nil
}

func fromBody(raw []byte) (request, error) {
	var p post
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return request{}, stacerr.Validationf("Invalid request body: %v", err)
		}
	}
	q, err := terms(p.Q)
	if err != nil {
		return request{}, err
	}
	return request{
		Collections: p.Collections,
		IDs:         p.IDs,
		BBox:        p.BBox,
		Intersects:  p.Intersects,
		Datetime:    p.Datetime,
		Q:           q,
		Query:       p.Query,
		Filter:      p.Filter,
		FilterLang:  p.FilterLang,
		FilterCRS:   p.FilterCRS,
		SortBy:      p.SortBy,
		Fields:      p.Fields,
		Token:       p.Token,
		Limit:       p.Limit,
		Conf:        p.Conf,
		defaultLang: LangCQL2JSON,
	}, nil
}

func (n *Normalizer) canonical(r request) (model.SearchRequest, error) {
	if err := n.allowed(r); err != nil {
		return model.SearchRequest{}, err
	}
	if err := n.check(r); err != nil {
		return model.SearchRequest{}, err
	}
	if r.Intersects != nil && len(r.BBox) > 0 {
		return model.SearchRequest{}, stacerr.Validationf("intersects and bbox parameters are mutually exclusive")
	}
	if err := checkGeometry(r.Intersects); err != nil {
		return model.SearchRequest{}, err
	}
	filter, lang, err := n.filter(r)
	if err != nil {
		return model.SearchRequest{}, err
	}

	out := model.SearchRequest{
		Collections: compact(r.Collections),
		IDs:         compact(r.IDs),
		BBox:        model.BBox(r.BBox),
		Intersects:  r.Intersects,
		Datetime:    r.Datetime,
		Q:           strings.Join(compact(r.Q), " OR "),
		Query:       r.Query,
		Filter:      filter,
		FilterLang:  lang,
		FilterCRS:   r.FilterCRS,
		SortBy:      sortDefaults(r.SortBy),
		Fields:      disjoint(r.Fields),
		Token:       r.Token,
		Conf:        r.Conf,
	}
	if len(out.BBox) == 0 {
		out.BBox = nil
	}
	if r.Limit != nil {
		out.Limit = *r.Limit
	}
	if n.noHydrate {
		conf := make(map[string]any, len(out.Conf)+1)
		for k, v := range out.Conf {
			conf[k] = v
		}
		conf["nohydrate"] = true
		out.Conf = conf
	}
	return out, nil
}

// allowed rejects parameters of disabled capabilities.
func (n *Normalizer) allowed(r request) error {
	switch {
	case r.Query != nil && !n.ext.Query:
		return disabled("query", "query")
	case len(r.SortBy) > 0 && !n.ext.Sort:
		return disabled("sortby", "sort")
	case r.Fields != nil && !n.ext.Fields:
		return disabled("fields", "fields")
	case (r.Filter != nil || r.FilterLang != "") && !n.ext.Filter:
		return disabled("filter", "filter")
	case len(r.Q) > 0 && !n.ext.FreeText:
		return disabled("q", "free_text")
	case r.Token != "" && n.ext.Pagination == config.PaginationNone:
		return disabled("token", "pagination")
	}
	return nil
}

func disabled(param, ext string) error {
	return stacerr.Validationf("Parameter %q is not available: the %s extension is not enabled", param, ext)
}

// check runs the struct rules and the value checks the tags cannot express.
func (n *Normalizer) check(r request) error {
	if err := n.validate.Struct(r); err != nil {
		return validationError(err)
	}
	if len(r.BBox) > 0 {
		if err := checkBBox(model.BBox(r.BBox)); err != nil {
			return err
		}
	}
	if r.Datetime != "" {
		if err := checkDatetime(r.Datetime); err != nil {
			return err
		}
	}
	return checkQuery(r.Query)
}

// filter resolves the dialect and returns the JSON tree sent to the backend.
func (n *Normalizer) filter(r request) (map[string]any, string, error) {
	lang := r.FilterLang
	if lang == "" {
		lang = r.defaultLang
		// untagged text filters in POST bodies
		if s, ok := r.Filter.(string); ok && lang == LangCQL2JSON && !strings.HasPrefix(strings.TrimSpace(s), "{") {
			lang = LangCQL2Text
		}
	}
	if r.Query != nil && (r.Filter != nil || r.FilterLang != "") && lang != LangCQLJSON {
		return nil, "", stacerr.Validationf("Query extension is not available when using the filter expression language")
	}
	if r.Filter == nil {
		return nil, "", nil
	}

	switch f := r.Filter.(type) {
	case map[string]any:
		if lang == LangCQL2Text {
			return nil, "", stacerr.Validationf("Invalid filter: filter-lang %s requires a text expression", LangCQL2Text)
		}
		return f, lang, nil
	case string:
		if lang == LangCQL2Text {
			tree, err := n.cql.Parse(f)
			if err != nil {
				return nil, "", stacerr.Validationf("Invalid filter: %v", err)
			}
			return tree, LangCQL2JSON, nil
		}
		var tree map[string]any
		if err := decodeParam("filter", f, &tree); err != nil {
			return nil, "", err
		}
		return tree, lang, nil
	default:
		return nil, "", stacerr.Validationf("Invalid filter: expected an object or a text expression, got %T", r.Filter)
	}
}

// list splits comma separated values across repeated parameters.
func list(v url.Values, key string) []string {
	var out []string
	for _, raw := range v[key] {
		for p := range strings.SplitSeq(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func terms(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, stacerr.Validationf("Invalid q: expected a string or a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, stacerr.Validationf("Invalid q: expected a string or a list of strings")
	}
}

func decodeParam(name, s string, dst any) error {
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return stacerr.Validationf("Invalid %s: %v", name, err)
	}
	return nil
}

func intParam(name, s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, stacerr.Validationf("Invalid %s: %q is not an integer", name, s)
	}
	return v, nil
}

// parseSortBy reads "+a,-b,c"; a bare field sorts ascending.
func parseSortBy(tokens []string) []model.SortBy {
	out := make([]model.SortBy, 0, len(tokens))
	for _, t := range tokens {
		dir := "asc"
		switch t[0] {
		case '-':
			dir = "desc"
			t = t[1:]
		case '+':
			t = t[1:]
		}
		out = append(out, model.SortBy{Field: strings.TrimSpace(t), Direction: dir})
	}
	return out
}

func sortDefaults(in []model.SortBy) []model.SortBy {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.SortBy, len(in))
	for i, s := range in {
		if s.Direction == "" {
			s.Direction = "asc"
		}
		out[i] = s
	}
	return out
}

// parseFields reads "+a,-b,c"; a bare field is included.
func parseFields(tokens []string) *model.Fields {
	f := &model.Fields{}
	for _, t := range tokens {
		switch t[0] {
		case '-':
			f.Exclude = append(f.Exclude, strings.TrimSpace(t[1:]))
		case '+':
			f.Include = append(f.Include, strings.TrimSpace(t[1:]))
		default:
			f.Include = append(f.Include, t)
		}
	}
	return f
}

// disjoint dedupes both sets and drops included paths that are also excluded.
func disjoint(f *model.Fields) *model.Fields {
	if f.Empty() {
		return nil
	}
	excl := uniq(f.Exclude)
	skip := make(map[string]bool, len(excl))
	for _, e := range excl {
		skip[e] = true
	}
	var incl []string
	for _, i := range uniq(f.Include) {
		if !skip[i] {
			incl = append(incl, i)
		}
	}
	out := &model.Fields{Include: incl, Exclude: excl}
	if out.Empty() {
		return nil
	}
	return out
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
