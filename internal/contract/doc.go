// Package contract loads sfwa ABI contract documents.
//
// A contract declares what a single-file web application must expose: element
// identifiers present at parse time, structural selectors, event
// registrations, URL-hash read/write behavior, and literal source markers.
//
// # Document Format
//
// Contracts are JSON (or YAML) documents:
//
//	{
//	  "abi": "sfwa-abi-1",
//	  "contractId": "meal-planner",
//	  "html": {"requires": {"ids": ["app"], "selectors": ["title", "meta[charset]"]}},
//	  "js": {"requires": {
//	    "domIds": ["counter"],
//	    "events": [{"target": "window", "type": "hashchange"}],
//	    "hashIO": {"readsLocationHash": true, "writesHash": true, "writeMethods": ["history.replaceState"]},
//	    "markers": ["encodeState("]
//	  }},
//	  "state": {"canonicalization": {"writesOnBoot": true}}
//	}
//
// Static identifiers (html.requires.ids, js.requires.domIds) name only
// elements guaranteed present before any script runs. Elements a target
// injects at runtime are verified through behavioral evidence (events and
// hash writes) instead.
//
// The document shape is checked against an embedded CUE schema. Beyond shape
// and the ABI tag no semantic validation is performed; a contract without any
// requirement is valid and trivially satisfied.
package contract
