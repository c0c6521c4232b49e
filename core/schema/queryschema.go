package schema

import (
	"fmt"
	"strings"
)

// QuerySchema is the compiled query surface derived from a datamodel. It is
// built once during connect and owned by the connected engine state.
type QuerySchema struct {
	DatabaseName string
	Datamodel    *Datamodel
	Operations   []Operation
}

// Operation is one exposed query or mutation bound to a model.
type Operation struct {
	Name     string
	Model    string
	Mutation bool
}

var operationKinds = []struct {
	prefix   string
	mutation bool
}{
	{"findMany", false},
	{"findUnique", false},
	{"createOne", true},
	{"updateOne", true},
	{"deleteOne", true},
}

// BuildQuerySchema compiles the query surface for a datamodel. Operation
// order follows model declaration order.
func BuildQuerySchema(dm *Datamodel, databaseName string) *QuerySchema {
	qs := &QuerySchema{DatabaseName: databaseName, Datamodel: dm}
	if dm == nil {
		return qs
	}
	for _, m := range dm.Models {
		for _, kind := range operationKinds {
			qs.Operations = append(qs.Operations, Operation{
				Name:     kind.prefix + m.Name,
				Model:    m.Name,
				Mutation: kind.mutation,
			})
		}
	}
	return qs
}

// Operation looks up an operation by name.
func (qs *QuerySchema) Operation(name string) (Operation, bool) {
	for _, op := range qs.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

// SDL renders the query schema in GraphQL schema definition language.
func (qs *QuerySchema) SDL() string {
	var b strings.Builder

	if qs.Datamodel != nil {
		for _, e := range qs.Datamodel.Enums {
			fmt.Fprintf(&b, "enum %s {\n", e.Name)
			for _, v := range e.Values {
				fmt.Fprintf(&b, "  %s\n", v)
			}
			b.WriteString("}\n\n")
		}
		for _, m := range qs.Datamodel.Models {
			fmt.Fprintf(&b, "type %s {\n", m.Name)
			for _, f := range m.Fields {
				suffix := "!"
				if f.Optional {
					suffix = ""
				}
				fmt.Fprintf(&b, "  %s: %s%s\n", f.Name, f.Type, suffix)
			}
			b.WriteString("}\n\n")
		}
	}

	queries, mutations := qs.split()
	writeRoot(&b, "Query", queries)
	writeRoot(&b, "Mutation", mutations)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func (qs *QuerySchema) split() (queries, mutations []Operation) {
	for _, op := range qs.Operations {
		if op.Mutation {
			mutations = append(mutations, op)
		} else {
			queries = append(queries, op)
		}
	}
	return queries, mutations
}

func writeRoot(b *strings.Builder, root string, ops []Operation) {
	if len(ops) == 0 {
		return
	}
	fmt.Fprintf(b, "type %s {\n", root)
	for _, op := range ops {
		returnType := op.Model
		if strings.HasPrefix(op.Name, "findMany") {
			returnType = "[" + op.Model + "!]!"
		}
		fmt.Fprintf(b, "  %s: %s\n", op.Name, returnType)
	}
	b.WriteString("}\n\n")
}
