package navigation

import "math"

// Path is a route through the graph, start node first.
type Path struct {
	Nodes    []string
	Distance float64
}

// adjacency builds the N×N distance matrix. Edges touching a blocked node are left out.
func (g *FactoryGraph) adjacency(blocked map[string]bool) [][]float64 {
	n := len(g.nodes)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = math.Inf(1)
			}
		}
	}
	for _, e := range g.edges {
		if blocked[e.From] || blocked[e.To] {
			continue
		}
		from, to := g.index[e.From], g.index[e.To]
		if e.Length < m[from][to] {
			m[from][to] = e.Length
		}
	}
	return m
}

// shortestPath runs Dijkstra from start until target is settled or nothing reachable remains.
func (g *FactoryGraph) shortestPath(start, target string, blocked map[string]bool) *Path {
	s, ok := g.index[start]
	if !ok {
		return nil
	}
	t, ok := g.index[target]
	if !ok {
		return nil
	}
	if s == t {
		return &Path{Nodes: []string{start}}
	}

	adj := g.adjacency(blocked)
	n := len(g.nodes)
	dist := make([]float64, n)
	prev := make([]int, n)
	visited := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[s] = 0

	for {
		u := -1
		for i := 0; i < n; i++ {
			if !visited[i] && !math.IsInf(dist[i], 1) && (u == -1 || dist[i] < dist[u]) {
				u = i
			}
		}
		if u == -1 || u == t {
			break
		}
		visited[u] = true
		for v := 0; v < n; v++ {
			w := adj[u][v]
			if visited[v] || math.IsInf(w, 1) || u == v {
				continue
			}
			if d := dist[u] + w; d < dist[v] {
				dist[v] = d
				prev[v] = u
			}
		}
	}

	if math.IsInf(dist[t], 1) {
		return nil
	}
	var rev []string
	for at := t; at != -1; at = prev[at] {
		rev = append(rev, g.nodes[at].ID)
	}
	nodes := make([]string, len(rev))
	for i := range rev {
		nodes[i] = rev[len(rev)-1-i]
	}
	return &Path{Nodes: nodes, Distance: dist[t]}
}
