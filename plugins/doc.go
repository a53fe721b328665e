// Package plugins hosts fitting-routine plugins. Each subpackage implements
// core.Plugin and reaches session state only through internal/core and
// pkg/domain; storage and archive backends stay out of plugin code.
package plugins
