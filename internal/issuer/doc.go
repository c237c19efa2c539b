// Package issuer is the administrator side of node locking. It derives
// license codes from machine codes with the issuing secret, parses machine
// code lists for batch runs, exports audit files and keeps an optional
// SQLite ledger of every code it has issued.
package issuer
