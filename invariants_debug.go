//go:build sparsedebug

package sparse

// Builds tagged sparsedebug validate the index after every Write.
const debugInvariants = true
