// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	_ "embed"
	"fmt"

	"github.com/bureau-foundation/proxysandbox/lib/atomicfile"
)

// defaultTemplate is the proxy configuration used when Config leaves
// TemplatePath empty: TLS on the service port, the first upstream at
// "/" and the second at "/uaa".
//
//go:embed templates/nginx.conf.tmpl
var defaultTemplate []byte

// DefaultTemplate returns a copy of the embedded proxy template.
func DefaultTemplate() []byte {
	return append([]byte(nil), defaultTemplate...)
}

// writeDefaultTemplate places the embedded template at path.
func writeDefaultTemplate(path string) error {
	if err := atomicfile.Write(path, defaultTemplate, 0o644); err != nil {
		return fmt.Errorf("sandbox: writing default template: %w", err)
	}
	return nil
}
