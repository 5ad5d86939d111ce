// Package services defines the shared error taxonomy and context carriers
// used by collaborator clients and the pipeline driver. Collaborator clients
// live in subpackages (source, rewrite, speech, render, objstore, publish).
package services
