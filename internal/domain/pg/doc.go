// Package pg holds the domain vocabulary shared by the cache, the executor
// and the lifecycle: server and acquisition statuses, the process kind table,
// authentication methods, target platforms and the error taxonomy.
package pg
