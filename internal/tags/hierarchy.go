package tags

// Hierarchy nests tags by their '/' segments. A segment with nothing below it
// maps to nil; a segment that is both a tag and a parent keeps its children.
func Hierarchy(list []string) map[string]any {
	root := make(map[string]any)
	for _, tag := range list {
		current := root
		parts := Segments(tag)
		for i, part := range parts {
			last := i == len(parts)-1
			child, exists := current[part]
			if last {
				if !exists {
					current[part] = nil
				}
				break
			}
			next, ok := child.(map[string]any)
			if !ok {
				next = make(map[string]any)
				current[part] = next
			}
			current = next
		}
	}
	return root
}

// Node is one segment of the counted tag tree.
type Node struct {
	Count    int              `json:"count"`
	Children map[string]*Node `json:"children"`
}

// CountHierarchy builds the counted tag tree over the tag lists of many notes.
// Every segment on a tag's path is incremented once per occurrence; leaves
// carry nil children.
func CountHierarchy(tagLists [][]string) map[string]*Node {
	root := make(map[string]*Node)
	for _, list := range tagLists {
		for _, tag := range list {
			level := root
			parts := Segments(tag)
			for i, part := range parts {
				node, ok := level[part]
				if !ok {
					node = &Node{}
					level[part] = node
				}
				node.Count++
				if i == len(parts)-1 {
					break
				}
				if node.Children == nil {
					node.Children = make(map[string]*Node)
				}
				level = node.Children
			}
		}
	}
	return root
}
