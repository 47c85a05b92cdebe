// Package routing finds minimum-hop settlement paths between banks.
package routing

import (
	"context"
	"sort"

	"corrsim/internal/models"
	"corrsim/internal/store"
)

// Graph is an undirected per-currency adjacency list over bank ids.
// Neighbour lists are ordered by bank name.
type Graph struct {
	Currency  string
	Neighbors map[string][]string
}

// BuildGraph reads the current topology for currency. Banks share an edge when
// one holds a nostro in currency at a correspondent whose base currency is
// currency, or when both have currency as their base currency.
func BuildGraph(ctx context.Context, tx store.Tx, currency string) (*Graph, error) {
	banks, err := tx.ListBanks(ctx)
	if err != nil {
		return nil, err
	}
	nostros, err := tx.ListNostros(ctx, models.NostroFilter{Currency: currency})
	if err != nil {
		return nil, err
	}
	return newGraph(currency, banks, nostros), nil
}

func newGraph(currency string, banks []models.Bank, nostros []models.NostroAccount) *Graph {
	byID := make(map[string]models.Bank, len(banks))
	neighbors := make(map[string][]string, len(banks))
	for _, b := range banks {
		byID[b.ID] = b
		neighbors[b.ID] = nil
	}

	link := func(a, b string) {
		neighbors[a] = append(neighbors[a], b)
	}

	for _, n := range nostros {
		corr, ok := byID[n.CorrespondentBankID]
		if !ok || corr.BaseCurrency != currency {
			continue
		}
		if _, ok := byID[n.OwnerBankID]; !ok {
			continue
		}
		link(n.OwnerBankID, n.CorrespondentBankID)
		link(n.CorrespondentBankID, n.OwnerBankID)
	}

	var native []string
	for _, b := range banks {
		if b.BaseCurrency == currency {
			native = append(native, b.ID)
		}
	}
	for _, a := range native {
		for _, b := range native {
			if a != b {
				link(a, b)
			}
		}
	}

	name := func(id string) string {
		if b, ok := byID[id]; ok {
			return b.Name
		}
		return id
	}
	for id, ns := range neighbors {
		sort.SliceStable(ns, func(i, j int) bool { return name(ns[i]) < name(ns[j]) })
		neighbors[id] = ns
	}

	return &Graph{Currency: currency, Neighbors: neighbors}
}

// ShortestPath returns the breadth-first minimum-hop path from -> to, or nil
// when to is unreachable. from == to yields [from].
func (g *Graph) ShortestPath(from, to string) []string {
	if from == to {
		return []string{from}
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.Neighbors[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				return unwind(prev, from, to)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func unwind(prev map[string]string, from, to string) []string {
	var path []string
	for p := to; ; p = prev[p] {
		path = append(path, p)
		if p == from {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Route rebuilds the graph for currency and returns the shortest path.
// ok is false when no path exists.
func Route(ctx context.Context, tx store.Tx, from, to, currency string) (path []string, ok bool, err error) {
	if from == to {
		return []string{from}, true, nil
	}
	g, err := BuildGraph(ctx, tx, currency)
	if err != nil {
		return nil, false, err
	}
	path = g.ShortestPath(from, to)
	return path, path != nil, nil
}
