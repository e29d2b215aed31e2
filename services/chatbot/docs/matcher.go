// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package docs maps query keywords to official documentation links.
package docs

import (
	"fmt"
	"strings"
)

// MaxLinks caps the number of documentation links appended to one answer.
const MaxLinks = 3

// Link is one official documentation reference.
type Link struct {
	Title string
	URL   string
}

type docEntry struct {
	keywords []string
	link     Link
}

// catalog pairs trigger keywords with curated official docs. Ordered by
// specificity so that "docker compose" wins over plain "docker".
var catalog = []docEntry{
	{
		keywords: []string{"docker compose", "docker-compose", "compose file"},
		link:     Link{Title: "Docker Compose Documentation", URL: "https://docs.docker.com/compose/"},
	},
	{
		keywords: []string{"docker", "container", "dockerfile"},
		link:     Link{Title: "Docker Documentation", URL: "https://docs.docker.com/"},
	},
	{
		keywords: []string{"kubernetes", "k8s", "kubectl"},
		link:     Link{Title: "Kubernetes Documentation", URL: "https://kubernetes.io/docs/"},
	},
	{
		keywords: []string{"vlookup", "xlookup", "excel", "spreadsheet", "pivot table"},
		link:     Link{Title: "Microsoft Excel Help", URL: "https://support.microsoft.com/excel"},
	},
	{
		keywords: []string{"python", "pip", "virtualenv"},
		link:     Link{Title: "Python Documentation", URL: "https://docs.python.org/3/"},
	},
	{
		keywords: []string{"linux", "ubuntu", "bash", "shell script"},
		link:     Link{Title: "Ubuntu Documentation", URL: "https://help.ubuntu.com/"},
	},
	{
		keywords: []string{"vpn", "wireguard"},
		link:     Link{Title: "WireGuard Documentation", URL: "https://www.wireguard.com/quickstart/"},
	},
	{
		keywords: []string{"dns", "domain name"},
		link:     Link{Title: "Cloudflare DNS Learning Center", URL: "https://www.cloudflare.com/learning/dns/what-is-dns/"},
	},
	{
		keywords: []string{"git", "github"},
		link:     Link{Title: "Git Documentation", URL: "https://git-scm.com/doc"},
	},
}

// Match returns documentation links whose keywords appear in the query,
// capped at MaxLinks, deduplicated, in catalog order.
func Match(query string) []Link {
	lowered := strings.ToLower(query)

	var links []Link
	seen := map[string]bool{}
	for _, entry := range catalog {
		for _, kw := range entry.keywords {
			if strings.Contains(lowered, kw) {
				if !seen[entry.link.URL] {
					seen[entry.link.URL] = true
					links = append(links, entry.link)
				}
				break
			}
		}
		if len(links) == MaxLinks {
			break
		}
	}
	return links
}

// RenderBlock formats links as the text block appended to an answer.
// Returns the empty string when there are no links.
func RenderBlock(links []Link) string {
	if len(links) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n📚 **Official Docs:**")
	for _, link := range links {
		fmt.Fprintf(&b, "\n- [%s](%s)", link.Title, link.URL)
	}
	return b.String()
}
