package router

import (
	"strings"
)

// helpText renders plain-text help. OneBot clients have no markup mode, so the
// same text is used for every adapter.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	root := m.root
	alias := m.alias
	m.mu.RUnlock()

	if len(path) == 0 {
		return helpTop(root)
	}

	cur := root
	full := make([]string, 0, len(path))
	for _, p := range path {
		p = strings.TrimPrefix(p, "/")
		n, ok := cur.child(p)
		if !ok {
			if leaf, ok2 := alias[p]; ok2 && leaf != nil && leaf.cmd != nil {
				cur = leaf
				full = splitRoute(leaf.cmd.Route)
				break
			}
			return "未知命令，请输入 /help 查看可用命令"
		}
		cur = n
		full = append(full, p)
	}
	return helpNode(cur, full)
}

func helpTop(root *cmdNode) string {
	lines := []string{"可用命令："}
	for _, name := range root.childNames() {
		n, _ := root.child(name)
		if n == nil {
			continue
		}
		line := "/" + name
		if d := summarizeNodeDesc(n); d != "" {
			line += " - " + d
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", "输入 /help <命令> 查看详情")
	return strings.Join(lines, "\n")
}

func helpNode(cur *cmdNode, full []string) string {
	lines := []string{"/" + strings.Join(full, " ")}

	if cur != nil && cur.cmd != nil {
		c := cur.cmd
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, d)
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "用法: "+u)
		}
		if len(c.Aliases) > 0 {
			lines = append(lines, "别名: /"+strings.Join(c.Aliases, " /"))
		}
	}

	if cur != nil && len(cur.children) > 0 {
		lines = append(lines, "子命令:")
		for _, name := range cur.childNames() {
			n, _ := cur.child(name)
			line := "/" + strings.Join(append(append([]string(nil), full...), name), " ")
			if d := summarizeNodeDesc(n); d != "" {
				line += " - " + d
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	k := min(len(kids), 3)
	s := strings.Join(kids[:k], ", ")
	if len(kids) > k {
		s += ", …"
	}
	return "子命令: " + s
}
