// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package render produces the proxy's configuration file from a
// template and a set of named attribute slots.
//
// A [Renderer] owns one output path and remembers the attribute set it
// last wrote successfully. [Renderer.Write] merges overrides into that
// set with [Merge], executes the template with text/template, and
// replaces the output atomically. The remembered set only advances
// when every step succeeds, so a failed write leaves both the file on
// disk and [Renderer.Current] at their previous values.
//
// Templates address slots by name:
//
//	listen {{.service_port}} ssl;
//	ssl_certificate {{.tls_cert_path}};
//
// Referencing a name that is not a slot is an execution error.
package render
