// Package banner renders the startup banner.
package banner

import "fmt"

const art = `
  ___  ___  __ _| |_ __ _  __ _
 / __|/ _ \/ _` + "`" + ` | __/ _` + "`" + ` |/ _` + "`" + ` |
 \__ \  __/ (_| | || (_| | (_| |
 |___/\___|\__, |\__\__,_|\__, |
              |_|         |___/
`

// Banner returns the banner with the version string.
func Banner(version string) string {
	return fmt.Sprintf("%s  sequence tagger %s\n\n", art, version)
}
