// Package plugins is the registry of every kv plugin
// compiled into this module
package plugins

import (
	"github.com/SpeedReach/surrealdb/storage/kv"
	"github.com/SpeedReach/surrealdb/storage/kv/plugins/bbolt"
	"github.com/SpeedReach/surrealdb/storage/kv/plugins/etcd"
	"github.com/SpeedReach/surrealdb/storage/kv/plugins/memory"
	"github.com/SpeedReach/surrealdb/storage/kv/plugins/mvcc"
)

var plugins []kv.Plugin

func init() {
	plugins = append(plugins, memory.Plugins()...)
	plugins = append(plugins, bbolt.Plugins()...)
	plugins = append(plugins, mvcc.Plugins()...)
	plugins = append(plugins, etcd.Plugins()...)
}

// Plugin returns the plugin whose name matches the given name.
// It returns nil if no such plugin is found.
func Plugin(name string) kv.Plugin {
	for _, plugin := range plugins {
		if plugin.Name() == name {
			return plugin
		}
	}

	return nil
}

// Plugins lists all the plugins that are available
func Plugins() []kv.Plugin {
	return plugins
}
