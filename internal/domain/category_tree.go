package domain

import "sort"

// CategoryNode is a category rendered for navigation, with its children nested.
type CategoryNode struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	ProductCount int            `json:"product_count"`
	Depth        int            `json:"depth"`
	Children     []CategoryNode `json:"children"`
}

// BuildCategoryTree nests a flat category list under its parents. Categories whose parent
// is missing from the list are shown as roots. Siblings are ordered by localized name.
func BuildCategoryTree(flat []Category, locale string) []CategoryNode {
	known := make(map[int64]bool, len(flat))
	for _, c := range flat {
		known[c.ID] = true
	}

	children := make(map[int64][]Category, len(flat))
	var roots []Category
	for _, c := range flat {
		if c.ParentCategoryID == nil || !known[*c.ParentCategoryID] || *c.ParentCategoryID == c.ID {
			roots = append(roots, c)
			continue
		}
		children[*c.ParentCategoryID] = append(children[*c.ParentCategoryID], c)
	}

	visited := make(map[int64]bool, len(flat))
	var build func(level []Category, depth int) []CategoryNode
	build = func(level []Category, depth int) []CategoryNode {
		sort.SliceStable(level, func(i, j int) bool {
			return level[i].LocalizedName(locale) < level[j].LocalizedName(locale)
		})
		nodes := make([]CategoryNode, 0, len(level))
		for i := range level {
			c := &level[i]
			if visited[c.ID] {
				continue
			}
			visited[c.ID] = true
			nodes = append(nodes, CategoryNode{
				ID:           c.ID,
				Name:         c.LocalizedName(locale),
				Slug:         c.Slug,
				ProductCount: c.ProductCount,
				Depth:        depth,
				Children:     build(children[c.ID], depth+1),
			})
		}
		return nodes
	}
	return build(roots, 0)
}
