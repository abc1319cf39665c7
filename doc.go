/*
Sqlmapper renders SQL statements declared in mapper documents and runs them on SQL databases.

A mapper document is an XML file naming a namespace and declaring statements.
The SQL text of a statement is built at call time from its dynamic elements, evaluated against a parameter value supplied by the caller.
The rendered text references the parameter through bind parameters, so values never need to be quoted into SQL.

# Basics

Given the document "user.xml":

	<mapper namespace="user">
	    <sql id="columns">id, name, team</sql>
	    <select id="find" resultType="Person">
	        SELECT <include refid="columns"/> FROM person
	        <where>
	            <if test="name != null">AND name = #{name}</if>
	            <if test="!empty(teams)">
	                AND team IN <foreach collection="teams" item="t" open="(" separator=", " close=")">#{t}</foreach>
	            </if>
	        </where>
	    </select>
	</mapper>

a mapper is created and the statement run with:

	m := sqlmapper.New(
	    sqlmapper.WithExecutor(sqlmapper.NewDBExecutor(db)),
	    sqlmapper.WithResultType("Person", Person{}),
	)
	err := m.Load("user.xml")
	people, err := m.Select(ctx, "user.find", map[string]any{"name": "Fred"})

The statement renders as

	SELECT id, name, team FROM person where name = :name_0

with the bind parameter name_0 set to "Fred". The team filter is left out because teams is absent.

# Elements

Statements are declared with select, insert, update and delete. A sql element declares a fragment that include elements of any document insert by qualified id.
Inside statements:

 1. <if test="expr">
    - Renders its content when expr is true.

 2. <choose>, <when test="expr">, <otherwise>
    - Renders the first when whose test is true, or else the otherwise.

 3. <where>, <set>
    - Render a where clause without its leading and/or, and a set clause without outer commas.

 4. <foreach collection="expr" item="v" index="k" open="(" separator="," close=")">
    - Renders its content once per element of a slice or map, binding v and k.

 5. <selectKey keyProperty="id" order="before|after" resultType="int">
    - Inside an insert, queries a generated key and stores it in the parameter.

Text may hold #{expr}, replaced by a bind parameter, and ${expr}, replaced by the value of expr as SQL text.
Only trusted values, such as identifiers or limits, should go through ${}.

# Expressions

Expressions read the parameter and the foreach bindings. They support property paths (a.b, a[0], a['key']), literals,
comparison (==, !=, <, lt, ...), boolean (and, or, !), arithmetic, concatenation with ".", the functions empty, count, strlen and mb_strlen,
and method calls on parameter values, subject to WithMethods.
A missing property evaluates to null. Null, false, zero, "", "0" and empty collections are false.
*/
package sqlmapper
