// Package model implements the LWM2M resource data model used by the
// object adapter.
//
// # Object Model Hierarchy
//
// LWM2M organizes device management data in three levels:
//
//	Object > Instance > Resource [> Resource Instance]
//
// An Object groups resource definitions under a numeric object ID (e.g. 3
// for Device). Each Object contains zero or more numbered Instances, and
// each Instance exposes Resources identified by a resource ID. A
// multiple-instance resource holds numbered Resource Instances, one level
// deep only.
//
// # Values
//
// Resource values are carried as a tagged union (Value):
//
//	Empty | Bool | Int | Text | Multi
//
// A Multi at the top level of a Record is a multiple resource; its entries
// are resource instances and may never be Multi themselves.
//
// # Addressing
//
// Resources are addressed by URI paths:
//
//	/ObjectID[/InstanceID[/ResourceID]]
//
// The ID 65535 is reserved by the protocol and never addresses anything.
package model
