// Package ffi holds the stable contract a C-ABI shim around kelp builds on:
// numeric error codes, packed struct layouts and a generation-checked table
// of renderer instances.
//
// The package has no cgo exports. A shim decodes its arguments with the
// Decode functions, resolves the renderer through a Table and reports the
// outcome of every call as a Code:
//
//	tbl := ffi.NewTable(1)
//	h, code := tbl.Initialise(win)
//	...
//	code = tbl.Call(h, func(k *kelp.Kelp) error {
//		return ffi.RenderBatch(k, nil, cam, clear, instances, batches)
//	})
//
// Packed layouts use the host's native byte order and C struct alignment.
package ffi
