// Package migrations is the public API for working with schemaflow
// descriptors outside this module: the descriptor model types, a loader that
// resolves module order, condition parsing, and the template used to
// scaffold new descriptors.
//
// A descriptor declares a module and its definitions. Each definition names
// a baseline script under schema/ and incremental scripts under migration/,
// each guarded by a condition:
//
//	id: billing
//	name: Billing
//	depends-on: [core]
//	definitions:
//	  - name: invoices
//	    path: billing/invoices.sql
//	    tables: [invoices]
//	    migrations:
//	      - path: billing/0001_invoice_due_date.sql
//	        condition: column invoices.due_date exists
//
// Loading a descriptor tree:
//
//	defs, err := migrations.Load(ctx, os.DirFS("db"), "descriptors", "postgresql")
package migrations
