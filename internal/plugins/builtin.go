// Package plugins gathers the built-in source adapters.
package plugins

import (
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/plugins/command"
	"github.com/taskdeck/ingestd/internal/plugins/github"
	"github.com/taskdeck/ingestd/internal/plugins/rss"
	"github.com/taskdeck/ingestd/internal/plugins/telegram"
	"github.com/taskdeck/ingestd/internal/plugins/wschat"
)

// Builtin returns every compiled-in plugin in registration order. User
// plugins discovered from manifests register after these, so a manifest
// declaring a built-in type shadows it.
func Builtin() []driven.Plugin {
	return []driven.Plugin{
		rss.Plugin(),
		github.Plugin(),
		telegram.Plugin(),
		wschat.Plugin(),
		command.Plugin(),
	}
}
