// Package integration contains the Integration bounded context.
// This context manages the connection to the remote accounting platform.
//
// Key concepts:
//   - Error: classified failure with a closed ErrorKind, retryable flag and localized user message
//   - Credential: OAuth token pair per (user, integration), updated only by compare-and-swap on Version
//   - AccountingPlatform: port for voucher, invoice, customer, account and SIE operations
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
