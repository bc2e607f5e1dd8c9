package mcpserver

// NavigationFormat describes the navigation blob so LLM consumers can
// reason about paths and ordering before calling the mutation tools.
const NavigationFormat = `# Folio Navigation Format

The site navigation lives in one JSON file on every branch:
` + "`" + `content/_navigation/navigation.json` + "`" + `.

## Structure

` + "```" + `json
{
  "navigation": [
    {
      "title": "Guides",
      "path": "/guides",
      "type": "directory",
      "locked": false,
      "children": [
        { "title": "Setup", "path": "/guides/setup", "type": "file", "locked": false }
      ]
    },
    { "title": "Intro", "path": "/intro", "type": "file", "locked": false }
  ]
}
` + "```" + `

## Rules

1. **Paths** are canonical routes: a leading slash, lowercase slugs, no ` + "`" + `.md` + "`" + ` suffix.
   A file at ` + "`" + `/guides/setup` + "`" + ` is backed by ` + "`" + `content/guides/setup.md` + "`" + `.
2. **Directories** always carry a ` + "`" + `children` + "`" + ` array, possibly empty.
   A directory at ` + "`" + `/guides` + "`" + ` is kept in git by ` + "`" + `content/guides/.gitkeep` + "`" + `.
3. **Ordering**: within every folder, directories come before files. Moves that would
   break this are refused with an "unchanged" outcome.
4. **Locked** entries are protected and cannot be moved; nothing can be inserted into them.
5. **Titles** become path slugs on insert: "Getting Started" under ` + "`" + `/guides` + "`" + ` is
   ` + "`" + `/guides/getting-started` + "`" + `. A title whose slug already exists in the folder is rejected.

## Workflow

Insert and move tools edit a local draft. Nothing reaches GitHub until
` + "`" + `commit_navigation` + "`" + ` is called. ` + "`" + `discard_navigation` + "`" + ` drops the draft and reloads.
After a commit GitHub may serve the previous file for a few minutes; the draft keeps
being served meanwhile.
`
