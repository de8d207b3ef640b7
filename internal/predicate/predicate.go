// Package predicate implements the metadata filter algebra used by the
// hybrid retriever: building predicates from structured filter arguments,
// splitting them into a store-native part and a client-evaluated residual,
// matching them against a chunk's metadata, and merging two predicates
// conjunctively.
package predicate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Predicate is a metadata filter expression. A leaf has exactly one field
// key mapping to an operator map, e.g. {"year": {"$gte": 2020}}. A compound
// predicate uses the reserved keys "$and", "$or", "$not".
type Predicate map[string]any

const (
	opEq       = "$eq"
	opNe       = "$ne"
	opGt       = "$gt"
	opGte      = "$gte"
	opLt       = "$lt"
	opLte      = "$lte"
	opIn       = "$in"
	opNin      = "$nin"
	opContains = "$contains"

	keyAnd = "$and"
	keyOr  = "$or"
	keyNot = "$not"

	// UnknownYear is the sentinel stored for items whose catalogue year
	// could not be determined.
	UnknownYear = -1
)

// storeNativeOps is the set of operators the vector store can evaluate
// itself. $contains is not in this set and must always be pushed to the
// client-side residual by Split.
var storeNativeOps = map[string]bool{
	opEq: true, opNe: true, opGt: true, opGte: true,
	opLt: true, opLte: true, opIn: true, opNin: true,
}

// itemTypeLabels maps the UI-facing label to the catalogue's internal
// item_type enum member. Build applies this mapping so callers can pass
// either form.
var itemTypeLabels = map[string]string{
	"Journal Article":   "journalArticle",
	"Book":              "book",
	"Book Section":      "bookSection",
	"Conference Paper":  "conferencePaper",
	"Thesis":            "thesis",
	"Preprint":          "preprint",
	"Webpage":           "webpage",
	"Report":            "report",
	"Presentation":      "presentation",
	"Manuscript":        "manuscript",
}

// InternalItemType resolves a UI label to its internal enum value. Values
// that are already internal names (or unrecognised) pass through
// unchanged.
func InternalItemType(label string) string {
	if internal, ok := itemTypeLabels[label]; ok {
		return internal
	}
	return label
}

// BuildArgs are the structured inputs accepted by Build.
type BuildArgs struct {
	YearMin     *int
	YearMax     *int
	Tags        []string
	Collections []string
	Title       string
	Author      string
	ItemTypes   []string
}

// Build assembles a conjunction of leaf predicates from structured filter
// arguments, or nil if none were supplied. Tags and collections become
// $contains disjunctions (a single leaf when len==1, an $or of leaves
// otherwise) since they are stored as pipe-delimited strings. Title and
// author become single $contains leaves. ItemTypes uses $eq for a single
// value and $in for multiple. Year bounds always exclude the unknown-year
// sentinel.
func Build(args BuildArgs) Predicate {
	var conditions []Predicate

	if args.YearMin != nil || args.YearMax != nil {
		var yearConds []Predicate
		if args.YearMin != nil {
			yearConds = append(yearConds, Predicate{"year": map[string]any{opGte: *args.YearMin}})
		}
		if args.YearMax != nil {
			yearConds = append(yearConds, Predicate{"year": map[string]any{opLte: *args.YearMax}})
		}
		yearConds = append(yearConds, Predicate{"year": map[string]any{opNe: UnknownYear}})
		conditions = append(conditions, conjoin(yearConds))
	}

	if c := containsDisjunction("tags", args.Tags); c != nil {
		conditions = append(conditions, c)
	}
	if c := containsDisjunction("collections", args.Collections); c != nil {
		conditions = append(conditions, c)
	}
	if strings.TrimSpace(args.Title) != "" {
		conditions = append(conditions, Predicate{"title": map[string]any{opContains: args.Title}})
	}
	if strings.TrimSpace(args.Author) != "" {
		conditions = append(conditions, Predicate{"authors": map[string]any{opContains: args.Author}})
	}
	if len(args.ItemTypes) == 1 {
		conditions = append(conditions, Predicate{"item_type": map[string]any{opEq: InternalItemType(args.ItemTypes[0])}})
	} else if len(args.ItemTypes) > 1 {
		mapped := make([]any, len(args.ItemTypes))
		for i, t := range args.ItemTypes {
			mapped[i] = InternalItemType(t)
		}
		conditions = append(conditions, Predicate{"item_type": map[string]any{opIn: mapped}})
	}

	if len(conditions) == 0 {
		return nil
	}
	if len(conditions) == 1 {
		return conditions[0]
	}
	return Predicate{keyAnd: conditions}
}

func containsDisjunction(field string, values []string) Predicate {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return Predicate{field: map[string]any{opContains: values[0]}}
	default:
		leaves := make([]Predicate, len(values))
		for i, v := range values {
			leaves[i] = Predicate{field: map[string]any{opContains: v}}
		}
		return Predicate{keyOr: leaves}
	}
}

func conjoin(preds []Predicate) Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return Predicate{keyAnd: preds}
}

// hasContains reports whether p contains a $contains operator anywhere in
// its tree.
func hasContains(p Predicate) bool {
	if p == nil {
		return false
	}
	if sub, ok := p[keyAnd]; ok {
		for _, s := range toPredicateSlice(sub) {
			if hasContains(s) {
				return true
			}
		}
		return false
	}
	if sub, ok := p[keyOr]; ok {
		for _, s := range toPredicateSlice(sub) {
			if hasContains(s) {
				return true
			}
		}
		return false
	}
	if sub, ok := p[keyNot]; ok {
		if inner, ok := sub.(Predicate); ok {
			return hasContains(inner)
		}
		return false
	}
	for _, opmap := range p {
		ops, ok := opmap.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := ops[opContains]; ok {
			return true
		}
	}
	return false
}

func toPredicateSlice(v any) []Predicate {
	switch s := v.(type) {
	case []Predicate:
		return s
	case []any:
		out := make([]Predicate, 0, len(s))
		for _, item := range s {
			if p, ok := item.(Predicate); ok {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Split partitions p into a store-native part (no $contains anywhere) and
// a client-side residual. A disjunction ($or) containing any $contains
// leaf cannot be safely partitioned element-wise, so the whole
// disjunction is pushed to the client side. The same caution applies to
// $not: if its operand needs any client-side evaluation, the whole $not
// goes client-side.
func Split(p Predicate) (storePart, clientPart Predicate) {
	if p == nil {
		return nil, nil
	}

	if sub, ok := p[keyAnd]; ok {
		var storeConds, clientConds []Predicate
		for _, s := range toPredicateSlice(sub) {
			sp, cp := Split(s)
			if sp != nil {
				storeConds = append(storeConds, sp)
			}
			if cp != nil {
				clientConds = append(clientConds, cp)
			}
		}
		return andOf(storeConds), andOf(clientConds)
	}

	if _, ok := p[keyOr]; ok {
		if hasContains(p) {
			return nil, p
		}
		return p, nil
	}

	if sub, ok := p[keyNot]; ok {
		inner, _ := sub.(Predicate)
		if hasContains(inner) {
			return nil, p
		}
		return p, nil
	}

	// Leaf: split operators within the single field between store-native
	// and $contains.
	for field, rawOps := range p {
		ops, ok := rawOps.(map[string]any)
		if !ok {
			return p, nil
		}
		storeOps := map[string]any{}
		clientOps := map[string]any{}
		for op, val := range ops {
			if op == opContains {
				clientOps[op] = val
			} else {
				storeOps[op] = val
			}
		}
		if len(storeOps) > 0 {
			storePart = Predicate{field: storeOps}
		}
		if len(clientOps) > 0 {
			clientPart = Predicate{field: clientOps}
		}
	}
	return storePart, clientPart
}

func andOf(preds []Predicate) Predicate {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return Predicate{keyAnd: preds}
	}
}

// Matches evaluates p against a single chunk's metadata, client-side,
// supporting every operator including a case-insensitive $contains.
func Matches(metadata map[string]any, p Predicate) bool {
	if p == nil {
		return true
	}
	if sub, ok := p[keyAnd]; ok {
		for _, s := range toPredicateSlice(sub) {
			if !Matches(metadata, s) {
				return false
			}
		}
		return true
	}
	if sub, ok := p[keyOr]; ok {
		for _, s := range toPredicateSlice(sub) {
			if Matches(metadata, s) {
				return true
			}
		}
		return false
	}
	if sub, ok := p[keyNot]; ok {
		inner, _ := sub.(Predicate)
		return !Matches(metadata, inner)
	}

	for field, rawOps := range p {
		ops, ok := rawOps.(map[string]any)
		if !ok {
			continue
		}
		value := metadata[field]
		for op, target := range ops {
			if !evalOp(value, op, target) {
				return false
			}
		}
	}
	return true
}

func evalOp(value any, op string, target any) bool {
	switch op {
	case opEq:
		return compareEqual(value, target)
	case opNe:
		return !compareEqual(value, target)
	case opGt:
		c, ok := compareOrdered(value, target)
		return ok && c > 0
	case opGte:
		c, ok := compareOrdered(value, target)
		return ok && c >= 0
	case opLt:
		c, ok := compareOrdered(value, target)
		return ok && c < 0
	case opLte:
		c, ok := compareOrdered(value, target)
		return ok && c <= 0
	case opIn:
		return memberOf(value, target)
	case opNin:
		return !memberOf(value, target)
	case opContains:
		return strings.Contains(strings.ToLower(fmt.Sprint(value)), strings.ToLower(fmt.Sprint(target)))
	default:
		return false
	}
}

func compareEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareOrdered(a, b any) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func memberOf(value, target any) bool {
	items, ok := target.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if compareEqual(value, item) {
			return true
		}
	}
	return false
}

// Merge conjoins two predicates, passing nil through unchanged: merging
// with nil returns the other operand, and merging two nils returns nil.
func Merge(p, q Predicate) Predicate {
	if p == nil {
		return q
	}
	if q == nil {
		return p
	}
	return Predicate{keyAnd: []Predicate{p, q}}
}

// DescribeFilters renders a human-readable summary of the active filters
// in a predicate, for display to a caller. Each condition renders as
// "field $op value" (e.g. "year $gte 2020"), the branches of an $or are
// joined with " or ", and the parts are sorted and joined with ", ".
// It understands only the shapes Build produces; it is a
// best-effort description, not a general predicate pretty-printer.
func DescribeFilters(p Predicate) string {
	if p == nil {
		return "no filters"
	}
	var parts []string
	collect(p, &parts)
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func collect(p Predicate, parts *[]string) {
	if sub, ok := p[keyAnd]; ok {
		for _, s := range toPredicateSlice(sub) {
			collect(s, parts)
		}
		return
	}
	if sub, ok := p[keyOr]; ok {
		var sub2 []string
		for _, s := range toPredicateSlice(sub) {
			var inner []string
			collect(s, &inner)
			sub2 = append(sub2, inner...)
		}
		*parts = append(*parts, strings.Join(sub2, " or "))
		return
	}
	if sub, ok := p[keyNot]; ok {
		inner, _ := sub.(Predicate)
		var innerParts []string
		collect(inner, &innerParts)
		*parts = append(*parts, "not ("+strings.Join(innerParts, ", ")+")")
		return
	}
	for field, rawOps := range p {
		ops, ok := rawOps.(map[string]any)
		if !ok {
			continue
		}
		for op, val := range ops {
			*parts = append(*parts, fmt.Sprintf("%s %s %v", field, op, val))
		}
	}
}
