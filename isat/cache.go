/*
Copyright © 2024 the TDAC authors.
This file is part of TDAC.

TDAC is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

TDAC is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with TDAC.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package isat implements an in-situ adaptive tabulation cache: a binary
// tree of linearizations (tabulation point, mapping result, Jacobian,
// ellipsoid of accuracy) that lets a chemistry facade replace an expensive
// ODE integration with a cheap linear lookup whenever the queried state
// falls inside a cached ellipsoid. The tree lives in two arena slices
// addressed by (index, isLeaf) refs rather than pointers, and eviction
// ordering is delegated to golang/groupcache/lru.
package isat

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/spatialmodel/tdac/errs"
	"github.com/spatialmodel/tdac/linalg"
)

// Config controls cache capacity, the accuracy tolerance, and the search
// and rebalance heuristics.
type Config struct {
	// MaxElements bounds the number of leaves. Zero or less means
	// unlimited: the cache never evicts on its own.
	MaxElements int

	// EpsTol is the ellipsoid-of-accuracy tolerance: Grow accepts a point
	// only when the scaled prediction error stays at or below it.
	EpsTol float64

	// Scale holds the characteristic magnitude of each state-vector
	// dimension. The EOA metric weights each dimension by the reciprocal of
	// its entry. Nil means every dimension has characteristic magnitude 1.
	Scale []float64

	// Max2ndSearch bounds how many leaves the secondary search may test
	// after a primary miss. Zero disables secondary search.
	Max2ndSearch int

	// MaxBalanceTests is the number of Add calls between rebalance checks.
	// Zero disables the check entirely.
	MaxBalanceTests int

	// BalanceThreshold triggers a rebalance when the tree depth exceeds
	// BalanceThreshold*log2(size). Zero means 2.
	BalanceThreshold float64
}

// Cache is an ISAT binary tree. The zero value is not usable; construct one
// with New. A Cache is not safe for concurrent use, matching the
// single-threaded-per-query concurrency model the Facade assumes.
type Cache struct {
	cfg     Config
	weights []float64 // reciprocal of cfg.Scale, nil when unscaled

	nodes      []node
	leaves     []Leaf
	freeNodes  []int
	freeLeaves []int

	root ref
	size int
	tick int64

	nEvict         int
	addsSinceCheck int

	lru *lru.Cache

	// Warn receives diagnostic messages (e.g. a rejected growth attempt)
	// that are not errors. It is wired to an Observer by the caller; a nil
	// Warn silently drops them.
	Warn func(string)

	// OnEvict fires after a leaf has been removed to make room, with the
	// evicted leaf's diagnostic ID.
	OnEvict func(uuid.UUID)
}

// New constructs an empty cache with the given configuration.
func New(cfg Config) *Cache {
	if cfg.EpsTol <= 0 {
		cfg.EpsTol = 1e-4
	}
	if cfg.BalanceThreshold <= 0 {
		cfg.BalanceThreshold = 2
	}
	c := &Cache{cfg: cfg, root: nilRef}
	if len(cfg.Scale) > 0 {
		c.weights = make([]float64, len(cfg.Scale))
		for i, s := range cfg.Scale {
			c.weights[i] = 1 / s
		}
	}
	if cfg.MaxElements > 0 {
		c.lru = c.newLRU()
	}
	return c
}

func (c *Cache) newLRU() *lru.Cache {
	l := lru.New(c.cfg.MaxElements)
	l.OnEvicted = func(key lru.Key, _ interface{}) {
		c.evictLeaf(key.(int))
	}
	return l
}

func (c *Cache) warn(msg string) {
	if c.Warn != nil {
		c.Warn(msg)
	}
}

// isFull reports whether the next Add would need to evict to make room.
func (c *Cache) isFull() bool {
	return c.cfg.MaxElements > 0 && c.size >= c.cfg.MaxElements
}

func dot(v, phi []float64) float64 {
	var s float64
	for i := range v {
		s += v[i] * phi[i]
	}
	return s
}

// scaledDiff returns (phi - phi0) weighted by the reciprocal characteristic
// magnitudes, the coordinates every ellipsoid factor L lives in.
func (c *Cache) scaledDiff(phi, phi0 []float64) []float64 {
	d := make([]float64, len(phi))
	for i := range phi {
		d[i] = phi[i] - phi0[i]
		if c.weights != nil {
			d[i] *= c.weights[i]
		}
	}
	return d
}

// descend runs the primary ISAT search from r down to a leaf: at each node,
// route left when v.phi - a <= 0, right otherwise.
func (c *Cache) descend(r ref, phi []float64) ref {
	cur := r
	for !cur.leaf {
		n := c.nodes[cur.idx]
		if dot(n.v, phi)-n.a <= 0 {
			cur = n.left
		} else {
			cur = n.right
		}
	}
	return cur
}

func (c *Cache) within(leafIdx int, phi []float64) bool {
	l := &c.leaves[leafIdx]
	ld := linalg.Apply(l.L, c.scaledDiff(phi, l.Phi))
	var normSq float64
	for _, x := range ld {
		normSq += x * x
	}
	return normSq <= 1
}

func (c *Cache) touch(leafIdx int) {
	c.tick++
	c.leaves[leafIdx].LastUsed = c.tick
	if c.lru != nil {
		c.lru.Add(leafIdx, leafIdx)
	}
}

// Retrieve performs the ISAT primary search: it descends to the leaf whose
// cutting-plane history would contain phi, then tests whether phi is
// actually inside that leaf's ellipsoid of accuracy. A hit bumps the
// leaf's usage statistics and recency; two successive Retrieve calls with
// no intervening Add/Grow/Balance/Clear return the same leaf and
// linearization (only the usage counters in the Record advance), since
// recency bookkeeping never changes tree shape.
func (c *Cache) Retrieve(phi []float64) (*Record, Handle, bool) {
	if !c.root.valid() {
		return nil, Handle{}, false
	}
	leafRef := c.descend(c.root, phi)
	if !c.within(leafRef.idx, phi) {
		return nil, Handle{}, false
	}
	c.leaves[leafRef.idx].NUsed++
	c.touch(leafRef.idx)
	return recordOf(&c.leaves[leafRef.idx]), Handle{idx: leafRef.idx}, true
}

// At returns the record for the leaf identified by h, without affecting
// usage statistics or recency. It is meant for callers deciding whether an
// existing leaf's mapping is already close enough to grow rather than
// adding a brand new leaf.
func (c *Cache) At(h Handle) (*Record, bool) {
	if h.idx < 0 || h.idx >= len(c.leaves) || !c.leaves[h.idx].alive {
		return nil, false
	}
	return recordOf(&c.leaves[h.idx]), true
}

// Nearest returns the leaf the primary search descends to for phi, without
// testing whether phi actually falls inside that leaf's ellipsoid. It is
// the candidate a failed Retrieve leaves behind: the starting point for
// SecondarySearch and the leaf Grow is attempted on first.
func (c *Cache) Nearest(phi []float64) (Handle, bool) {
	if !c.root.valid() {
		return Handle{}, false
	}
	leafRef := c.descend(c.root, phi)
	return Handle{idx: leafRef.idx}, true
}

// SecondarySearch walks up from the leaf identified by start toward the
// root, testing the sibling subtree hanging off each ancestor along the
// way: a point can fall just outside the ellipsoid the primary search
// finds while still being inside a neighboring leaf's ellipsoid. At most
// Max2ndSearch leaves are tested; zero disables the search entirely.
func (c *Cache) SecondarySearch(start Handle, phi []float64) (*Record, Handle, bool) {
	budget := c.cfg.Max2ndSearch
	if budget <= 0 {
		return nil, Handle{}, false
	}
	cur := ref{idx: start.idx, leaf: true}
	for {
		var parent ref
		if cur.leaf {
			parent = c.leaves[cur.idx].Parent
		} else {
			parent = c.nodes[cur.idx].parent
		}
		if !parent.valid() {
			return nil, Handle{}, false
		}
		pn := c.nodes[parent.idx]
		sib := pn.right
		if pn.left != cur {
			sib = pn.left
		}
		if rec, h, ok := c.searchSubtree(sib, phi, &budget); ok {
			return rec, h, true
		}
		if budget <= 0 {
			return nil, Handle{}, false
		}
		cur = parent
	}
}

func (c *Cache) searchSubtree(r ref, phi []float64, budget *int) (*Record, Handle, bool) {
	if *budget <= 0 {
		return nil, Handle{}, false
	}
	*budget--
	leafRef := c.descend(r, phi)
	if !c.within(leafRef.idx, phi) {
		return nil, Handle{}, false
	}
	c.leaves[leafRef.idx].NUsed++
	c.touch(leafRef.idx)
	return recordOf(&c.leaves[leafRef.idx]), Handle{idx: leafRef.idx}, true
}

// Grow attempts to enlarge the ellipsoid of accuracy of the leaf identified
// by h so that it also covers phi, whose true mapping result is rTrue. The
// point is accepted only when the leaf's linearization already predicts
// rTrue to within the scaled tolerance; the ellipsoid update itself is the
// rank-one minimum-volume rule in linalg.GrowEOA, followed by a Broyden
// rank-one correction of the stored Jacobian so later predictions fold in
// the new observation. Grow returns false, leaving the leaf unchanged, when
// the prediction error exceeds the tolerance or the update is singular.
func (c *Cache) Grow(h Handle, phi, rTrue []float64) bool {
	if h.idx < 0 || h.idx >= len(c.leaves) || !c.leaves[h.idx].alive {
		return false
	}
	l := &c.leaves[h.idx]

	dphi := make([]float64, len(phi))
	for i := range phi {
		dphi[i] = phi[i] - l.Phi[i]
	}
	predicted := linalg.Apply(l.A, dphi)
	var errSq float64
	for i := range predicted {
		e := rTrue[i] - (l.R[i] + predicted[i])
		if c.weights != nil {
			e *= c.weights[i]
		}
		errSq += e * e
	}
	if math.Sqrt(errSq) > c.cfg.EpsTol {
		return false
	}

	if !linalg.GrowEOA(l.L, c.scaledDiff(phi, l.Phi)) {
		c.warn(fmt.Sprintf("isat: singular ellipsoid update rejected for leaf %v", l.ID))
		return false
	}

	dr := make([]float64, len(rTrue))
	for i := range dr {
		dr[i] = rTrue[i] - l.R[i]
	}
	linalg.UpdateJacobianBroyden(l.A, dphi, dr)

	l.NGrown++
	c.touch(h.idx)
	return true
}

func (c *Cache) allocLeaf(l Leaf) int {
	l.alive = true
	if n := len(c.freeLeaves); n > 0 {
		idx := c.freeLeaves[n-1]
		c.freeLeaves = c.freeLeaves[:n-1]
		c.leaves[idx] = l
		return idx
	}
	c.leaves = append(c.leaves, l)
	return len(c.leaves) - 1
}

func (c *Cache) allocNode(n node) int {
	if k := len(c.freeNodes); k > 0 {
		idx := c.freeNodes[k-1]
		c.freeNodes = c.freeNodes[:k-1]
		c.nodes[idx] = n
		return idx
	}
	c.nodes = append(c.nodes, n)
	return len(c.nodes) - 1
}

func (c *Cache) replaceChild(parent, oldChild, newChild ref) {
	n := &c.nodes[parent.idx]
	if n.left == oldChild {
		n.left = newChild
	} else {
		n.right = newChild
	}
}

// insertRaw places a fully-populated leaf into the tree, splitting an
// existing leaf if the tree is non-empty. The cutting plane passes through
// the midpoint of the two tabulation points with normal
// scale-weighted (phiNew - phi0); the old leaf keeps the side phi0 falls
// on. It is the shared path used by Add (fresh leaves) and Balance
// (reinserting leaves that already carry usage history).
func (c *Cache) insertRaw(l Leaf) int {
	newIdx := c.allocLeaf(l)
	if !c.root.valid() {
		c.leaves[newIdx].Parent = nilRef
		c.root = ref{idx: newIdx, leaf: true}
		c.size++
		return newIdx
	}

	oldRef := c.descend(c.root, l.Phi)
	old := &c.leaves[oldRef.idx]

	v := make([]float64, len(l.Phi))
	var normSq float64
	for i := range l.Phi {
		v[i] = l.Phi[i] - old.Phi[i]
		if c.weights != nil {
			v[i] *= c.weights[i]
		}
		normSq += v[i] * v[i]
	}

	var a float64
	newRef := ref{idx: newIdx, leaf: true}
	if normSq == 0 {
		// Degenerate split: identical tabulation points. The plane is
		// undefined, so the new leaf becomes the right child
		// unconditionally.
		v[0] = 1
		a = dot(v, old.Phi) + 1
	} else {
		norm := math.Sqrt(normSq)
		mid := make([]float64, len(v))
		for i := range v {
			v[i] /= norm
			mid[i] = (l.Phi[i] + old.Phi[i]) / 2
		}
		a = dot(v, mid)
	}

	n := node{v: v, a: a, parent: old.Parent}
	nodeIdx := c.allocNode(n)

	if normSq != 0 && dot(v, l.Phi)-a <= 0 {
		c.nodes[nodeIdx].left = newRef
		c.nodes[nodeIdx].right = oldRef
	} else {
		c.nodes[nodeIdx].left = oldRef
		c.nodes[nodeIdx].right = newRef
	}

	nodeRef := ref{idx: nodeIdx, leaf: false}
	if !old.Parent.valid() {
		c.root = nodeRef
	} else {
		c.replaceChild(old.Parent, oldRef, nodeRef)
	}
	old.Parent = nodeRef
	c.leaves[newIdx].Parent = nodeRef

	c.size++
	return newIdx
}

// Add inserts a new linearization into the cache, evicting the
// least-recently-used leaf first if the cache is full. phi carries the full
// tabulation point (species concentrations, temperature, pressure); tau is
// the chemical time scale measured at tabulation. Add returns the
// diagnostic ID assigned to the new leaf.
func (c *Cache) Add(phi, r []float64, tau float64, a, l *mat.Dense) (uuid.UUID, error) {
	if len(phi) == 0 {
		return uuid.UUID{}, &errs.ConfigError{Msg: "isat: cannot add a record with an empty state vector"}
	}
	if c.weights != nil && len(c.weights) != len(phi) {
		return uuid.UUID{}, &errs.ConfigError{Msg: "isat: scale factor length does not match state vector length"}
	}
	if c.isFull() && c.lru != nil {
		c.lru.RemoveOldest()
	}
	c.tick++
	leaf := Leaf{
		ID:       uuid.New(),
		Phi:      append([]float64(nil), phi...),
		R:        append([]float64(nil), r...),
		A:        a,
		L:        l,
		Tau:      tau,
		Parent:   nilRef,
		NUsed:    1,
		LastUsed: c.tick,
	}
	idx := c.insertRaw(leaf)
	if c.lru != nil {
		c.lru.Add(idx, idx)
	}
	c.maybeBalance()
	return c.leaves[idx].ID, nil
}

// maybeBalance runs the cheap rebalance heuristic every MaxBalanceTests
// adds: when the tree has grown deeper than BalanceThreshold*log2(size),
// rebuild it around the maximum-variance axis.
func (c *Cache) maybeBalance() {
	if c.cfg.MaxBalanceTests <= 0 {
		return
	}
	c.addsSinceCheck++
	if c.addsSinceCheck < c.cfg.MaxBalanceTests {
		return
	}
	c.addsSinceCheck = 0
	if c.size < 4 {
		return
	}
	maxDepth, _ := c.depthStats()
	if float64(maxDepth) > c.cfg.BalanceThreshold*math.Log2(float64(c.size)) {
		c.Balance()
	}
}

// evictLeaf removes the leaf at idx from the tree, splicing its sibling
// into its parent's place: every other leaf stays reachable and the evicted
// branch's depth drops by one.
func (c *Cache) evictLeaf(idx int) {
	l := &c.leaves[idx]
	if !l.alive {
		return
	}
	id := l.ID
	parent := l.Parent
	if !parent.valid() {
		c.root = nilRef
	} else {
		pn := c.nodes[parent.idx]
		var sib ref
		if pn.left == (ref{idx: idx, leaf: true}) {
			sib = pn.right
		} else {
			sib = pn.left
		}
		grandparent := pn.parent
		if !grandparent.valid() {
			c.root = sib
		} else {
			c.replaceChild(grandparent, parent, sib)
		}
		if sib.leaf {
			c.leaves[sib.idx].Parent = grandparent
		} else {
			c.nodes[sib.idx].parent = grandparent
		}
		c.freeNodes = append(c.freeNodes, parent.idx)
	}
	l.alive = false
	l.Phi, l.R, l.A, l.L = nil, nil, nil, nil
	c.freeLeaves = append(c.freeLeaves, idx)
	c.size--
	c.nEvict++
	if c.OnEvict != nil {
		c.OnEvict(id)
	}
}

// Clear empties the cache entirely. Eviction and recency statistics are
// preserved; only the stored records are dropped.
func (c *Cache) Clear() {
	c.nodes = nil
	c.leaves = nil
	c.freeNodes = nil
	c.freeLeaves = nil
	c.root = nilRef
	c.size = 0
	c.addsSinceCheck = 0
	if c.lru != nil {
		c.lru = c.newLRU()
	}
}

// Len reports the number of live leaves in the cache.
func (c *Cache) Len() int { return c.size }

// Stats summarizes the cache's structure and eviction history.
type Stats struct {
	Size     int
	NEvict   int
	MaxDepth int
	AvgDepth float64
}

// Statistics reports the cache's current size, total evictions, and tree
// depth (root leaf at depth 1).
func (c *Cache) Statistics() Stats {
	maxDepth, avgDepth := c.depthStats()
	return Stats{Size: c.size, NEvict: c.nEvict, MaxDepth: maxDepth, AvgDepth: avgDepth}
}

func (c *Cache) depthStats() (maxDepth int, avgDepth float64) {
	if !c.root.valid() {
		return 0, 0
	}
	var sum, count int
	type frame struct {
		r     ref
		depth int
	}
	stack := []frame{{c.root, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.r.leaf {
			sum += f.depth
			count++
			if f.depth > maxDepth {
				maxDepth = f.depth
			}
			continue
		}
		n := c.nodes[f.r.idx]
		stack = append(stack, frame{n.left, f.depth + 1}, frame{n.right, f.depth + 1})
	}
	return maxDepth, float64(sum) / float64(count)
}

// Balance rebuilds the tree from scratch: it picks the coordinate axis with
// the largest spread across all live leaves, uses the leaf closest to the
// median on that axis as the new root, then reinserts the remaining leaves
// in random order. Usage counters (NUsed, NGrown, LastUsed) and diagnostic
// IDs are carried over unchanged; only tree shape is affected.
func (c *Cache) Balance() {
	live := make([]Leaf, 0, c.size)
	for i := range c.leaves {
		if c.leaves[i].alive {
			live = append(live, c.leaves[i])
		}
	}
	if len(live) == 0 {
		return
	}

	axis := maxVarianceAxis(live)
	sort.Slice(live, func(i, j int) bool { return live[i].Phi[axis] < live[j].Phi[axis] })
	medianIdx := len(live) / 2
	median := live[medianIdx]
	rest := make([]Leaf, 0, len(live)-1)
	for i, l := range live {
		if i != medianIdx {
			rest = append(rest, l)
		}
	}
	rand.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })

	c.nodes = nil
	c.leaves = nil
	c.freeNodes = nil
	c.freeLeaves = nil
	c.root = nilRef
	c.size = 0

	median.Parent = nilRef
	c.insertRaw(median)
	for _, l := range rest {
		l.Parent = nilRef
		c.insertRaw(l)
	}
	if c.lru != nil {
		c.lru = c.newLRU()
		order := make([]int, 0, c.size)
		for i := range c.leaves {
			if c.leaves[i].alive {
				order = append(order, i)
			}
		}
		sort.Slice(order, func(i, j int) bool { return c.leaves[order[i]].LastUsed < c.leaves[order[j]].LastUsed })
		for _, i := range order {
			c.lru.Add(i, i)
		}
	}
}

func maxVarianceAxis(leaves []Leaf) int {
	n := len(leaves[0].Phi)
	bestAxis := 0
	var bestVar float64 = -1
	for axis := 0; axis < n; axis++ {
		var mean float64
		for _, l := range leaves {
			mean += l.Phi[axis]
		}
		mean /= float64(len(leaves))
		var v float64
		for _, l := range leaves {
			diff := l.Phi[axis] - mean
			v += diff * diff
		}
		if v > bestVar {
			bestVar = v
			bestAxis = axis
		}
	}
	return bestAxis
}
