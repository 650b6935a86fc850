package schema

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// companyRegistry builds Person <- Employee -> Department -> Person, plus a
// Project/Membership pipe. Employee is registered before Department to
// exercise forward references.
func companyRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()

	person := New("Person", WithDBName("people"))
	mustColumn(t, person, Column{Name: "name", Type: TypeString})
	mustColumn(t, person, Column{Name: "age", Type: TypeInteger})
	require.NoError(t, reg.Register(person))

	employee := New("Employee", Inherits("Person"))
	mustColumn(t, employee, Column{Name: "department", Type: TypeReference, Reference: "Department"})
	mustColumn(t, employee, Column{Name: "manager_name", Type: TypeString, Shortcut: "department.manager.name"})
	_, err := employee.AddCollector(Collector{Name: "memberships", Kind: ReverseLookup, Model: "Membership", Column: "employee"})
	require.NoError(t, err)
	_, err = employee.AddCollector(Collector{Name: "projects", Kind: Pipe, Model: "Membership", Source: "employee", Target: "project"})
	require.NoError(t, err)
	require.NoError(t, reg.Register(employee))

	department := New("Department")
	mustColumn(t, department, Column{Name: "name", Type: TypeString})
	mustColumn(t, department, Column{Name: "floor", Type: TypeInteger})
	mustColumn(t, department, Column{Name: "manager", Type: TypeReference, Reference: "Person"})
	require.NoError(t, reg.Register(department))

	project := New("Project")
	mustColumn(t, project, Column{Name: "title", Type: TypeString})
	require.NoError(t, reg.Register(project))

	membership := New("Membership")
	mustColumn(t, membership, Column{Name: "employee", Type: TypeReference, Reference: "Employee"})
	mustColumn(t, membership, Column{Name: "project", Type: TypeReference, Reference: "Project"})
	require.NoError(t, reg.Register(membership))

	return reg
}

func mustColumn(t *testing.T, s *Schema, c Column) *Column {
	t.Helper()
	col, err := s.AddColumn(c)
	require.NoError(t, err)
	return col
}

func TestNew_RootSchemaGetsIDColumn(t *testing.T) {
	s := New("Thing")
	require.Len(t, s.Columns(), 1)
	assert.Equal(t, "id", s.Columns()[0].Name)
	assert.Equal(t, TypeID, s.Columns()[0].Type)
	assert.Equal(t, "Thing", s.DBName())

	child := New("Child", Inherits("Thing"))
	assert.Empty(t, child.Columns())
	assert.Equal(t, "", child.IDColumnName())
}

func TestAddColumn_RejectsDuplicatesAndBadDeclarations(t *testing.T) {
	s := New("Thing")
	mustColumn(t, s, Column{Name: "name", Type: TypeString})

	_, err := s.AddColumn(Column{Name: "name", Type: TypeString})
	assert.ErrorContains(t, err, "duplicate member")

	_, err = s.AddColumn(Column{Name: "a.b", Type: TypeString})
	assert.ErrorContains(t, err, "must not contain")

	_, err = s.AddColumn(Column{Name: "owner", Type: TypeReference})
	assert.ErrorContains(t, err, "no target model")

	_, err = s.AddCollector(Collector{Name: "name", Kind: ReverseLookup, Model: "X", Column: "y"})
	assert.ErrorContains(t, err, "duplicate member")

	_, err = s.AddCollector(Collector{Name: "things", Kind: "sideways", Model: "X"})
	assert.ErrorContains(t, err, "unknown kind")
}

func TestColumnCopy_DropsSchemaAssociation(t *testing.T) {
	s := New("Thing")
	col := mustColumn(t, s, Column{Name: "name", Type: TypeString, Field: "name_"})
	assert.Equal(t, "Thing", col.Schema())
	assert.Equal(t, "name_", col.FieldName())

	cp := col.Copy()
	assert.Equal(t, "", cp.Schema())
	assert.Equal(t, col.Name, cp.Name)
	assert.Equal(t, col.Field, cp.Field)

	other := New("Other")
	added := mustColumn(t, other, *cp)
	assert.Equal(t, "Other", added.Schema())
	assert.Equal(t, "", cp.Schema())
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := companyRegistry(t)

	assert.Equal(t, []string{"Person", "Employee", "Department", "Project", "Membership"}, reg.Names())

	_, err := reg.Schema("Nope")
	require.Error(t, err)
	assert.True(t, IsModelNotFound(err))

	assert.Error(t, reg.Register(New("Person")))
	assert.Panics(t, func() { reg.MustSchema("Nope") })
}

func TestRegistry_InheritedLookupNearestFirst(t *testing.T) {
	reg := companyRegistry(t)

	col, err := reg.Column("Employee", "name")
	require.NoError(t, err)
	assert.Equal(t, "Person", col.Schema())

	id, err := reg.IDColumn("Employee")
	require.NoError(t, err)
	assert.Equal(t, "id", id.Name)
	assert.Equal(t, "Person", id.Schema())

	cols, err := reg.AllColumns("Employee")
	require.NoError(t, err)
	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"id", "name", "age", "department", "manager_name"}, names)
}

func TestRegistry_ShadowedColumn(t *testing.T) {
	reg := NewRegistry()
	base := New("Base")
	mustColumn(t, base, Column{Name: "label", Type: TypeString})
	require.NoError(t, reg.Register(base))

	derived := New("Derived", Inherits("Base"))
	mustColumn(t, derived, Column{Name: "label", Type: TypeInteger})
	require.NoError(t, reg.Register(derived))

	col, err := reg.Column("Derived", "label")
	require.NoError(t, err)
	assert.Equal(t, TypeInteger, col.Type)
	assert.Equal(t, "Derived", col.Schema())
}

func TestRegistry_BrokenInheritanceIsColumnNotFound(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(New("Orphan", Inherits("Missing"))))
	require.NoError(t, reg.Register(New("A", Inherits("B"))))
	require.NoError(t, reg.Register(New("B", Inherits("A"))))

	_, err := reg.Column("Orphan", "id")
	require.Error(t, err)
	assert.True(t, IsColumnNotFound(err))
	assert.Contains(t, err.Error(), "unresolvable parent")

	_, err = reg.Column("A", "id")
	require.Error(t, err)
	assert.True(t, IsColumnNotFound(err))
	assert.Contains(t, err.Error(), "inheritance cycle")
}

func TestResolve_DotPaths(t *testing.T) {
	reg := companyRegistry(t)

	tests := []struct {
		name   string
		model  string
		path   string
		schema string
		column string
	}{
		{"plain", "Department", "floor", "Department", "floor"},
		{"one hop", "Employee", "department.name", "Department", "name"},
		{"two hops", "Employee", "department.manager.name", "Person", "name"},
		{"reverse collector", "Employee", "memberships.project", "Membership", "project"},
		{"pipe collector", "Employee", "projects.title", "Project", "title"},
		{"cycle back", "Membership", "employee.department.manager.age", "Person", "age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, err := reg.Resolve(tt.model, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.schema, col.Schema())
			assert.Equal(t, tt.column, col.Name)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	reg := companyRegistry(t)

	_, err := reg.Resolve("Employee", "salary")
	assert.True(t, IsColumnNotFound(err), "missing first segment: %v", err)

	_, err = reg.Resolve("Employee", "age.value")
	assert.True(t, IsColumnNotFound(err), "non-reference intermediate: %v", err)

	_, err = reg.Resolve("Employee", "department.budget")
	assert.True(t, IsColumnNotFound(err), "missing terminal: %v", err)

	_, err = reg.Resolve("Employee", "projects")
	assert.True(t, IsColumnNotFound(err), "path ending at collector: %v", err)

	_, err = reg.Resolve("Ghost", "name")
	assert.True(t, IsModelNotFound(err))

	dangling := New("Dangling")
	mustColumn(t, dangling, Column{Name: "target", Type: TypeReference, Reference: "Nowhere"})
	require.NoError(t, reg.Register(dangling))
	_, err = reg.Resolve("Dangling", "target.name")
	assert.True(t, IsModelNotFound(err), "unregistered reference target: %v", err)

	assert.False(t, reg.HasColumn("Dangling", "target.name"))
	assert.True(t, reg.HasColumn("Dangling", "target"))
}

func TestResolve_CacheInvalidatedByNewMembers(t *testing.T) {
	reg := NewRegistry()
	s := New("Thing")
	require.NoError(t, reg.Register(s))

	_, err := reg.Resolve("Thing", "color")
	require.Error(t, err)

	col := mustColumn(t, s, Column{Name: "color", Type: TypeString})
	got, err := reg.Resolve("Thing", "color")
	require.NoError(t, err)
	assert.Same(t, col, got)

	again, err := reg.Resolve("Thing", "color")
	require.NoError(t, err)
	assert.Same(t, got, again)
}

func TestResolve_CacheInvalidatedByAncestorShadowing(t *testing.T) {
	reg := NewRegistry()
	root := New("Root")
	rootTitle := mustColumn(t, root, Column{Name: "title", Type: TypeString})
	mid := New("Mid", Inherits("Root"))
	leaf := New("Leaf", Inherits("Mid"))
	for _, s := range []*Schema{root, mid, leaf} {
		require.NoError(t, reg.Register(s))
	}

	got, err := reg.Resolve("Leaf", "title")
	require.NoError(t, err)
	assert.Same(t, rootTitle, got)

	midTitle := mustColumn(t, mid, Column{Name: "title", Type: TypeString})
	m, err := reg.Member("Leaf", "title")
	require.NoError(t, err)
	assert.Same(t, midTitle, m.Column)

	got, err = reg.Resolve("Leaf", "title")
	require.NoError(t, err)
	assert.Same(t, midTitle, got)
}

func TestResolve_CacheInvalidatedAcrossReferences(t *testing.T) {
	reg := NewRegistry()
	base := New("Base")
	baseX := mustColumn(t, base, Column{Name: "x", Type: TypeString})
	target := New("Target", Inherits("Base"))
	owner := New("Owner")
	mustColumn(t, owner, Column{Name: "ref", Type: TypeReference, Reference: "Target"})
	for _, s := range []*Schema{base, target, owner} {
		require.NoError(t, reg.Register(s))
	}

	got, err := reg.Resolve("Owner", "ref.x")
	require.NoError(t, err)
	assert.Same(t, baseX, got)

	targetX := mustColumn(t, target, Column{Name: "x", Type: TypeString})
	got, err = reg.Resolve("Owner", "ref.x")
	require.NoError(t, err)
	assert.Same(t, targetX, got)
}

func TestResolve_ConcurrentReaders(t *testing.T) {
	reg := companyRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				col, err := reg.Resolve("Employee", "department.manager.name")
				if assert.NoError(t, err) {
					assert.Equal(t, "name", col.Name)
				}
			}
		}()
	}
	wg.Wait()
}

func TestHasHandle(t *testing.T) {
	reg := companyRegistry(t)

	name, err := reg.Column("Person", "name")
	require.NoError(t, err)
	assert.True(t, reg.HasHandle("Employee", name))
	assert.True(t, reg.HasHandle("Person", name))
	assert.False(t, reg.HasHandle("Department", name))
	assert.False(t, reg.HasHandle("Person", name.Copy()))
	assert.False(t, reg.HasHandle("Person", nil))
}

func TestCollectorTarget(t *testing.T) {
	reg := companyRegistry(t)

	c, err := reg.Collector("Employee", "projects")
	require.NoError(t, err)
	target, err := reg.CollectorTarget(c)
	require.NoError(t, err)
	assert.Equal(t, "Project", target)

	_, err = reg.Collector("Employee", "name")
	assert.True(t, IsColumnNotFound(err))
}

func TestErrorFormatting(t *testing.T) {
	assert.Equal(t, "COLUMN_NOT_FOUND: column not found (model=User, name=age)", NewColumnNotFound("User", "age").Error())
	assert.Equal(t, "MODEL_NOT_FOUND: model not found (name=User)", NewModelNotFound("User").Error())
	assert.Equal(t, "QUERY_INVALID: no model (name=a.b)", NewQueryInvalid("", "a.b", "no model").Error())
}

func TestParseColumnType(t *testing.T) {
	ct, err := ParseColumnType("datetime")
	require.NoError(t, err)
	assert.Equal(t, TypeDatetime, ct)

	_, err = ParseColumnType("blob")
	assert.Error(t, err)
}
