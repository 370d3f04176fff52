package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePerson(t *testing.T) {
	name, email := NormalizePerson("Tutor: Ing. Juan Pérez")
	assert.Equal(t, "Juan Pérez", name)
	assert.Empty(t, email)

	name, email = NormalizePerson("Autor (estudiante): María López maria.lopez@live.uleam.edu.ec")
	assert.Equal(t, "María López maria.lopez@live.uleam.edu.ec", name)
	assert.Equal(t, "maria.lopez@live.uleam.edu.ec", email)

	name, _ = NormalizePerson("Dr. A")
	assert.Empty(t, name)

	name, _ = NormalizePerson("   ")
	assert.Empty(t, name)
}

func TestBuildSearchTerms(t *testing.T) {
	name, email, terms := BuildSearchTerms("Tutor Académico: Msc. José Andrés Cevallos")
	assert.Equal(t, "José Andrés Cevallos", name)
	assert.Empty(t, email)
	assert.Equal(t, "Jose", terms.First)
	assert.Equal(t, "Jose Andres", terms.First2)
	assert.Equal(t, "Cevallos", terms.Last)
	assert.Equal(t, "Cevallos Jose", terms.LastFirst)
	assert.Equal(t, "Jose Andres Cevallos", terms.FullASCII)

	_, email, terms = BuildSearchTerms("jperez@uleam.edu.ec")
	assert.Equal(t, "jperez@uleam.edu.ec", email)
	assert.Equal(t, "jperez", terms.EmailPrefix)

	_, _, terms = BuildSearchTerms("")
	assert.True(t, terms.Empty())
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "a1b2c3d4", SanitizeKey("A1B2-C3D4"))
	assert.Equal(t, "e58ed763928a4c85bdb8c0ac23be96f6",
		SanitizeKey("e58ed763-928a-4c85-bdb8-c0ac23be96f6"))
	assert.Equal(t, "", SanitizeKey("---"))
	assert.Equal(t, "user_1", SanitizeKey("User_1!"))
}

func TestStripAccents(t *testing.T) {
	assert.Equal(t, "Jose Nunez", StripAccents("José Núñez"))
	assert.Equal(t, "plain", StripAccents("plain"))
}
