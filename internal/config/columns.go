package config

import "github.com/nao1215/vulnmerge/internal/model"

// DefaultColumnTable returns the built-in column table of a family.
// The synonyms cover the Chinese and English exports of the scanners each
// family is modeled on, plus common renames seen in hand-edited sheets.
func DefaultColumnTable(family model.Family) ColumnTable {
	switch family {
	case model.FamilyHost:
		return hostColumns.Clone()
	case model.FamilyWeb:
		return webColumns.Clone()
	case model.FamilyVulnMgmt:
		return vulnMgmtColumns.Clone()
	case model.FamilyPort:
		return portColumns.Clone()
	default:
		return nil
	}
}

var hostColumns = ColumnTable{
	{Field: model.FieldIP, Synonyms: []string{"IP", "IP地址", "ipaddress", "ip address", "host", "主机", "资产地址", "地址"}, Fuzzy: true},
	{Field: model.FieldPort, Synonyms: []string{"端口", "port", "端口号", "服务端口", "协议/端口", "protocol/port"}, Fuzzy: true},
	{Field: model.FieldProtocol, Synonyms: []string{"协议", "protocol"}},
	{Field: model.FieldName, Synonyms: []string{"漏洞名称", "名称", "vuln name", "vulnerability name", "name", "title", "漏洞"}, Fuzzy: true},
	{Field: model.FieldRisk, Synonyms: []string{"风险等级", "等级", "risk level", "severity", "威胁等级", "风险"}, Fuzzy: true},
	{Field: model.FieldDescription, Synonyms: []string{"漏洞说明", "漏洞描述", "描述", "description", "说明"}, Fuzzy: true},
	{Field: model.FieldRemediation, Synonyms: []string{"加固建议", "整改建议", "修复建议", "解决办法", "建议", "recommendation", "remediation", "solution"}, Fuzzy: true},
	{Field: model.FieldCVE, Synonyms: []string{"CVE", "漏洞CVE编号", "CVE编号", "cve id", "漏洞CVE"}, Fuzzy: true},
	{Field: model.FieldEvidence, Synonyms: []string{"扫描返回信息", "返回信息", "evidence"}},
	{Field: model.FieldFirstSeen, Synonyms: []string{"首次发现时间", "发现时间", "first seen"}},
	{Field: model.FieldLastSeen, Synonyms: []string{"最后发现时间", "last seen"}},
}

var webColumns = ColumnTable{
	{Field: model.FieldURL, Synonyms: []string{"风险地址", "url", "risk address", "漏洞地址", "位置", "affected items", "affected item"}, Fuzzy: true},
	{Field: model.FieldTarget, Synonyms: []string{"风险目标", "target", "start url", "扫描目标"}},
	{Field: model.FieldIP, Synonyms: []string{"IP", "IP地址", "ip address"}},
	{Field: model.FieldName, Synonyms: []string{"风险名称", "alert group", "alert", "漏洞名称", "vulnerability", "name"}, Fuzzy: true},
	{Field: model.FieldRisk, Synonyms: []string{"风险等级", "severity", "risk level", "risk", "严重性", "危险等级", "等级"}, Fuzzy: true},
	{Field: model.FieldDescription, Synonyms: []string{"风险描述", "漏洞描述", "描述", "description"}, Fuzzy: true},
	{Field: model.FieldRemediation, Synonyms: []string{"整改意见", "修复建议", "recommendations", "recommendation", "remediation"}, Fuzzy: true},
	{Field: model.FieldEvidence, Synonyms: []string{"风险详细", "详细信息", "details"}},
	{Field: model.FieldRequest, Synonyms: []string{"风险请求", "request", "http request"}},
	{Field: model.FieldCVE, Synonyms: []string{"CVE", "cve id"}},
}

var vulnMgmtColumns = ColumnTable{
	{Field: model.FieldPluginID, Synonyms: []string{"Plugin ID", "plugin", "编号"}},
	{Field: model.FieldCVE, Synonyms: []string{"CVE"}},
	{Field: model.FieldRisk, Synonyms: []string{"Risk", "severity", "风险等级"}},
	{Field: model.FieldIP, Synonyms: []string{"Host", "IP", "ip address"}},
	{Field: model.FieldProtocol, Synonyms: []string{"Protocol", "协议"}},
	{Field: model.FieldPort, Synonyms: []string{"Port", "端口"}},
	{Field: model.FieldName, Synonyms: []string{"Name", "Plugin Name", "漏洞名称"}},
	{Field: model.FieldSynopsis, Synonyms: []string{"Synopsis", "摘要"}},
	{Field: model.FieldDescription, Synonyms: []string{"Description", "描述"}},
	{Field: model.FieldRemediation, Synonyms: []string{"Solution", "修复建议"}},
	{Field: model.FieldEvidence, Synonyms: []string{"Plugin Output"}},
	{Field: model.FieldFirstSeen, Synonyms: []string{"First Discovered", "first seen"}},
	{Field: model.FieldLastSeen, Synonyms: []string{"Last Observed", "last seen"}},
}

var portColumns = ColumnTable{
	{Field: model.FieldIP, Synonyms: []string{"IP", "ip address", "地址", "Host"}, Fuzzy: true},
	{Field: model.FieldPort, Synonyms: []string{"端口/协议", "端口", "Port", "portid"}, Fuzzy: true},
	{Field: model.FieldProtocol, Synonyms: []string{"协议", "Protocol"}},
	{Field: model.FieldState, Synonyms: []string{"状态", "State", "开放状态"}, Fuzzy: true},
	{Field: model.FieldService, Synonyms: []string{"服务", "Service", "服务名"}, Fuzzy: true},
	{Field: model.FieldRemark, Synonyms: []string{"端口用途", "用途", "备注", "Remark"}, Fuzzy: true},
	{Field: model.FieldName, Synonyms: []string{"漏洞名称", "name"}},
	{Field: model.FieldRisk, Synonyms: []string{"风险等级", "risk"}},
}

// DefaultVocabulary returns the built-in risk vocabulary.
func DefaultVocabulary() model.Vocabulary {
	v := make(model.Vocabulary)
	add := func(s model.Severity, tokens ...string) {
		for _, t := range tokens {
			v[t] = s
		}
	}
	add(model.SeverityCritical, "critical", "urgent", "紧急", "严重", "超危")
	add(model.SeverityHigh, "high", "高", "高危", "高风险")
	add(model.SeverityMedium, "medium", "moderate", "中", "中危", "中风险")
	add(model.SeverityLow, "low", "低", "低危", "低风险")
	add(model.SeverityInfo, "info", "informational", "information", "none", "信息", "提示", "无")
	return v
}

// DangerPolicy decides which open ports are flagged as risky.
type DangerPolicy struct {
	Ports map[int]bool
	// Services are matched as case-insensitive substrings of the service name.
	Services    []string
	Remediation string
}

// DefaultDangerRemediation is set on every flagged port.
const DefaultDangerRemediation = "This is a high-risk port. It must not be exposed to the internet; close it or restrict access to trusted addresses."

// DefaultDangerPolicy returns the built-in dangerous port list.
func DefaultDangerPolicy() DangerPolicy {
	ports := []int{
		20, 21, 23, 25, 53, 69, 110, 111, 135, 137, 139, 143, 161, 389, 445,
		512, 513, 514, 873, 888, 1433, 1521, 1529, 2049, 3306, 3389, 5000,
		5432, 5900, 5901, 5902, 6379, 7001, 9200, 9300, 11211, 27017, 27018,
	}
	p := DangerPolicy{
		Ports: make(map[int]bool, len(ports)),
		Services: []string{
			"ftp", "telnet", "smtp", "domain", "dns", "tftp", "pop3", "imap",
			"rpcbind", "netbios", "microsoft-ds", "smb", "snmp", "ldap",
			"rsync", "nfs", "ms-sql", "mssql", "oracle", "mysql", "postgresql",
			"ms-wbt-server", "rdp", "vnc", "redis", "weblogic", "elasticsearch",
			"memcache", "mongodb",
		},
		Remediation: DefaultDangerRemediation,
	}
	for _, port := range ports {
		p.Ports[port] = true
	}
	return p
}
