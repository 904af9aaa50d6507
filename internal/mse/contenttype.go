/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package mse

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ContentType is a parsed media type with its optional codecs parameter.
type ContentType struct {
	Type   string
	Codecs []string

	raw string
}

// ParseContentType parses values like `video/mp4; codecs="avc1.42E01E, mp4a.40.2"`.
func ParseContentType(value string) (ContentType, error) {
	if strings.TrimSpace(value) == "" {
		return ContentType{}, errors.New("empty content type")
	}
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		return ContentType{}, fmt.Errorf("invalid content type %q: %w", value, err)
	}

	ct := ContentType{
		Type: mediaType,
		raw:  value,
	}
	if codecs, ok := params["codecs"]; ok {
		for _, codec := range strings.Split(codecs, ",") {
			codec = strings.TrimSpace(codec)
			if codec == "" {
				return ContentType{}, fmt.Errorf("empty codec in content type %q", value)
			}
			ct.Codecs = append(ct.Codecs, codec)
		}
	}

	return ct, nil
}

func (ct ContentType) String() string {
	if ct.raw != "" {
		return ct.raw
	}
	if len(ct.Codecs) == 0 {
		return ct.Type
	}
	return fmt.Sprintf("%s; codecs=\"%s\"", ct.Type, strings.Join(ct.Codecs, ","))
}

// TypeRegistry holds the supported container types and the codecs allowed
// within each. It must not be modified once in use.
type TypeRegistry struct {
	types map[string][]string
}

// NewTypeRegistry creates an empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string][]string),
	}
}

// DefaultTypeRegistry returns a registry with the commonly streamed
// containers and codecs.
func DefaultTypeRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	r.Register("video/mp4", "avc1", "avc3", "hvc1", "hev1", "av01", "vp09", "mp4a", "opus", "flac", "ac-3", "ec-3")
	r.Register("audio/mp4", "mp4a", "opus", "flac", "ac-3", "ec-3")
	r.Register("video/webm", "vp8", "vp9", "vp09", "av01", "opus", "vorbis")
	r.Register("audio/webm", "opus", "vorbis")
	r.Register("video/mp2t", "avc1", "hvc1", "mp4a", "mp3", "ac-3")
	r.Register("audio/mpeg")
	r.Register("audio/aac")
	return r
}

// Register adds a container type with its allowed codec names. A codec
// name also matches codec strings which extend it with dotted parameters.
func (r *TypeRegistry) Register(mediaType string, codecs ...string) {
	mediaType = strings.ToLower(mediaType)
	allowed := r.types[mediaType]
	for _, codec := range codecs {
		allowed = append(allowed, strings.ToLower(codec))
	}
	r.types[mediaType] = allowed
}

// RegisterSpec registers a type given as `type` or `type:codec,codec`.
func (r *TypeRegistry) RegisterSpec(spec string) error {
	parts := strings.SplitN(spec, ":", 2)
	mediaType := strings.TrimSpace(parts[0])
	if _, _, err := mime.ParseMediaType(mediaType); err != nil || !strings.Contains(mediaType, "/") {
		return fmt.Errorf("invalid media type in %q", spec)
	}
	var codecs []string
	if len(parts) > 1 {
		for _, codec := range strings.Split(parts[1], ",") {
			if codec = strings.TrimSpace(codec); codec != "" {
				codecs = append(codecs, codec)
			}
		}
	}
	r.Register(mediaType, codecs...)
	return nil
}

// Types returns the registered container types.
func (r *TypeRegistry) Types() []string {
	types := make([]string, 0, len(r.types))
	for mediaType := range r.types {
		types = append(types, mediaType)
	}
	return types
}

// IsSupported reports whether the container is registered and all codecs
// are allowed in it.
func (r *TypeRegistry) IsSupported(ct ContentType) bool {
	allowed, ok := r.types[ct.Type]
	if !ok {
		return false
	}
	for _, codec := range ct.Codecs {
		if !codecAllowed(allowed, codec) {
			return false
		}
	}
	return true
}

func codecAllowed(allowed []string, codec string) bool {
	codec = strings.ToLower(codec)
	for _, name := range allowed {
		if codec == name || strings.HasPrefix(codec, name+".") {
			return true
		}
	}
	return false
}
