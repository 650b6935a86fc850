package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orb-framework/orb-sub002/internal/schema"
)

// companyRegistry declares:
//
//	Person(name, age)
//	Employee : Person (department -> Department, manager_name = department.manager.name)
//	  memberships: reverse Membership.employee
//	  projects: pipe Membership(employee -> project)
//	  active_projects: pipe Membership(employee -> project), filter "active"
//	Department(name, floor, manager -> Person)
//	Project(title, active)
//	Membership(employee -> Employee, project -> Project, role)
func companyRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()

	person := schema.New("Person")
	addColumns(t, person,
		schema.Column{Name: "name", Type: schema.TypeString},
		schema.Column{Name: "age", Type: schema.TypeInteger},
	)
	require.NoError(t, reg.Register(person))

	employee := schema.New("Employee", schema.Inherits("Person"))
	addColumns(t, employee,
		schema.Column{Name: "department", Type: schema.TypeReference, Reference: "Department"},
		schema.Column{Name: "manager_name", Type: schema.TypeString, Shortcut: "department.manager.name"},
	)
	addCollectors(t, employee,
		schema.Collector{Name: "memberships", Kind: schema.ReverseLookup, Model: "Membership", Column: "employee"},
		schema.Collector{Name: "projects", Kind: schema.Pipe, Model: "Membership", Source: "employee", Target: "project"},
		schema.Collector{Name: "active_projects", Kind: schema.Pipe, Model: "Membership", Source: "employee", Target: "project", Filter: "active"},
	)
	require.NoError(t, reg.Register(employee))

	department := schema.New("Department")
	addColumns(t, department,
		schema.Column{Name: "name", Type: schema.TypeString},
		schema.Column{Name: "floor", Type: schema.TypeInteger},
		schema.Column{Name: "manager", Type: schema.TypeReference, Reference: "Person"},
	)
	require.NoError(t, reg.Register(department))

	project := schema.New("Project")
	addColumns(t, project,
		schema.Column{Name: "title", Type: schema.TypeString},
		schema.Column{Name: "active", Type: schema.TypeBoolean},
	)
	require.NoError(t, reg.Register(project))

	membership := schema.New("Membership")
	addColumns(t, membership,
		schema.Column{Name: "employee", Type: schema.TypeReference, Reference: "Employee"},
		schema.Column{Name: "project", Type: schema.TypeReference, Reference: "Project"},
		schema.Column{Name: "role", Type: schema.TypeString},
	)
	require.NoError(t, reg.Register(membership))

	return reg
}

func addColumns(t *testing.T, s *schema.Schema, cols ...schema.Column) {
	t.Helper()
	for _, c := range cols {
		_, err := s.AddColumn(c)
		require.NoError(t, err)
	}
}

func addCollectors(t *testing.T, s *schema.Schema, cols ...schema.Collector) {
	t.Helper()
	for _, c := range cols {
		_, err := s.AddCollector(c)
		require.NoError(t, err)
	}
}

// leafColumns returns the column of every leaf, descending into sub-select
// where clauses and nested query values.
func leafColumns(e Expr) []string {
	var out []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case Query:
			out = append(out, v.Column())
			switch val := v.Value().(type) {
			case Selection:
				if val.Where != nil {
					walk(val.Where)
				}
			case Expr:
				walk(val)
			}
		case Compound:
			for _, q := range v.Queries() {
				walk(q)
			}
		}
	}
	walk(e)
	return out
}
