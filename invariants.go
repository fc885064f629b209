//go:build !sparsedebug

package sparse

const debugInvariants = false
