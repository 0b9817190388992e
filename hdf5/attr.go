// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package hdf5

// Attribute is one attribute on a dataset or group. Scalar attributes and
// 1-D arrays of supported kinds carry their value; anything else (two or
// more dimensions, enum, compound, float16) is classified KindUnsupported
// with a nil value so callers can warn and skip instead of failing the
// scan.
type Attribute struct {
	Name   string
	Kind   Kind
	Scalar bool        // false for 1-D array attributes
	Dims   []uint64    // nil for scalar
	Value  interface{} // typed scalar or slice; nil when Kind is KindUnsupported
}

// Supported reports whether the attribute's value was decodable.
func (a Attribute) Supported() bool {
	return a.Kind != KindUnsupported
}

// attrSupported reports whether an attribute of the given raw kind and
// dimensionality is representable.
func attrSupported(kind Kind, dims []uint64) bool {
	if len(dims) > 1 {
		return false
	}
	switch kind {
	case KindFloat16, KindEnum, KindCompound, KindUnsupported, KindInvalid:
		return false
	}
	return true
}

// ClassifyAttr normalizes a raw attribute as read from the file. The value
// of an unsupported attribute is dropped; its name and dims are preserved
// so the condition can be reported.
func ClassifyAttr(raw Attribute) Attribute {
	if attrSupported(raw.Kind, raw.Dims) {
		raw.Scalar = len(raw.Dims) == 0
		return raw
	}
	return Attribute{
		Name: raw.Name,
		Kind: KindUnsupported,
		Dims: raw.Dims,
	}
}
